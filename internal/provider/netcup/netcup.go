// Package netcup implements the builtin Netcup DNS provider. Netcup
// exposes a JSON-RPC style endpoint with a session flow: login, then
// record operations carrying the session id, then logout.
package netcup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/rule"
)

const defaultEndpoint = "https://ccp.netcup.net/run/webservice/servers/endpoint.php"

// Netcup statuscodes for rejected credentials. All other non-2000 codes
// are server-side conditions worth retrying.
const (
	codeSuccess     = 2000
	codeAuthFailed  = 4008
	codeLoginFailed = 4013
)

// statusRule classifies the JSON-RPC envelope by its numeric
// "statuscode": 2000 is success, rejected credentials are fatal, and
// anything else is assumed transient.
type statusRule struct{}

func (statusRule) Interpret(status int, body []byte) provider.Outcome {
	if status == 429 || (status >= 500 && status <= 599) {
		return provider.Retryablef("status code %d", status)
	}
	if !gjson.ValidBytes(body) {
		return provider.Retryable("malformed JSON response")
	}

	code := gjson.GetBytes(body, "statuscode").Int()
	message := gjson.GetBytes(body, "longmessage").String()
	if message == "" {
		message = gjson.GetBytes(body, "shortmessage").String()
	}

	switch code {
	case codeSuccess:
		return provider.Outcome{Kind: provider.KindApplied}
	case codeAuthFailed, codeLoginFailed:
		return provider.Fatalf("statuscode %d: %s", code, message)
	default:
		return provider.Retryablef("statuscode %d: %s", code, message)
	}
}

func init() {
	provider.Register("netcup", New)
}

type Provider struct {
	name           string
	customerNumber string
	apiKey         string
	apiPassword    string
	endpoint       string
	rule           rule.Rule
	exec           *provider.Exec
}

func New(name string, spec config.ProviderSpec, exec *provider.Exec) (provider.Provider, error) {
	for _, cred := range []string{"customerNumber", "apiKey", "apiPassword"} {
		if spec.Credentials[cred] == "" {
			return nil, fmt.Errorf("netcup provider %q: credential %s is required", name, cred)
		}
	}

	endpoint := spec.Credentials["endpoint"]
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	return &Provider{
		name:           name,
		customerNumber: spec.Credentials["customerNumber"],
		apiKey:         spec.Credentials["apiKey"],
		apiPassword:    spec.Credentials["apiPassword"],
		endpoint:       endpoint,
		rule:           statusRule{},
		exec:           exec,
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

type rpcRequest struct {
	Action string `json:"action"`
	Param  any    `json:"param"`
}

type dnsRecord struct {
	ID          string `json:"id,omitempty"`
	Hostname    string `json:"hostname"`
	Type        string `json:"type"`
	Destination string `json:"destination"`
}

func (p *Provider) Apply(ctx context.Context, req provider.Request) provider.Outcome {
	session, out := p.login(ctx)
	if out.Kind != provider.KindApplied {
		return out
	}
	defer p.logout(ctx, session)

	infoBody, out := p.call(ctx, rpcRequest{
		Action: "infoDnsRecords",
		Param: map[string]string{
			"customernumber": p.customerNumber,
			"apikey":         p.apiKey,
			"apisessionid":   session,
			"domainname":     req.Zone,
		},
	})
	if out.Kind != provider.KindApplied {
		return out
	}

	record := dnsRecord{Hostname: req.Name, Type: req.Type, Destination: req.IP.String()}
	if existing, found := findRecord(infoBody, req.Name, req.Type); found {
		if existing.Destination == req.IP.String() {
			return provider.Unchanged()
		}
		record.ID = existing.ID
	}

	_, out = p.call(ctx, rpcRequest{
		Action: "updateDnsRecords",
		Param: map[string]any{
			"customernumber": p.customerNumber,
			"apikey":         p.apiKey,
			"apisessionid":   session,
			"domainname":     req.Zone,
			"dnsrecordset":   map[string]any{"dnsrecords": []dnsRecord{record}},
		},
	})
	if out.Kind == provider.KindApplied {
		out.IP = req.IP
	}
	return out
}

func (p *Provider) login(ctx context.Context) (string, provider.Outcome) {
	body, out := p.call(ctx, rpcRequest{
		Action: "login",
		Param: map[string]string{
			"customernumber": p.customerNumber,
			"apikey":         p.apiKey,
			"apipassword":    p.apiPassword,
		},
	})
	if out.Kind != provider.KindApplied {
		return "", out
	}

	session := gjson.GetBytes(body, "responsedata.apisessionid").String()
	if session == "" {
		return "", provider.Retryable("login response missing apisessionid")
	}
	return session, out
}

// logout is best effort; an expired session ages out server side.
func (p *Provider) logout(ctx context.Context, session string) {
	_, out := p.call(ctx, rpcRequest{
		Action: "logout",
		Param: map[string]string{
			"customernumber": p.customerNumber,
			"apikey":         p.apiKey,
			"apisessionid":   session,
		},
	})
	if out.Kind != provider.KindApplied {
		slog.Debug("Netcup logout failed", "provider", p.name, "reason", out.Reason)
	}
}

// call posts one JSON-RPC action and classifies the response through
// the shared rule. The body is returned for payload extraction.
func (p *Provider) call(ctx context.Context, rpc rpcRequest) ([]byte, provider.Outcome) {
	payload, err := json.Marshal(rpc)
	if err != nil {
		return nil, provider.Fatalf("marshal %s request: %v", rpc.Action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, provider.Fatalf("create %s request: %v", rpc.Action, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, body, err := p.exec.Do(ctx, p.name, httpReq)
	if err != nil {
		return nil, provider.Retryablef("%s request: %v", rpc.Action, err)
	}
	return body, p.rule.Interpret(status, body)
}

func findRecord(body []byte, hostname, recordType string) (dnsRecord, bool) {
	var rec dnsRecord
	found := false

	gjson.GetBytes(body, "responsedata.dnsrecords").ForEach(func(_, r gjson.Result) bool {
		if r.Get("hostname").String() == hostname && r.Get("type").String() == recordType {
			rec = dnsRecord{
				ID:          r.Get("id").String(),
				Hostname:    hostname,
				Type:        recordType,
				Destination: r.Get("destination").String(),
			}
			found = true
			return false
		}
		return true
	})
	return rec, found
}
