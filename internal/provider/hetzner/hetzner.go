// Package hetzner implements the builtin Hetzner DNS provider. Records
// are addressed through a zone ID, looked up once per zone and cached.
package hetzner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/rule"
	"github.com/evanofslack/ddns-sync/internal/template"
)

const defaultBaseURL = "https://dns.hetzner.com/api/v1"

const (
	zonesPath           = "/zones"
	recordsPathTemplate = "/records?zone_id={zone_id}"
	recordPathTemplate  = "/records/{record_id}"
	bodyTemplate        = `{{"zone_id":"{zone_id}","type":"{type}","name":"{record}","value":"{ip}"}}`
)

// Hetzner answers with plain resource payloads, no status envelope, so
// classification is carried entirely by the response code.
var ruleSpec = config.ResponseRule{
	Type:       "raw",
	Success:    ".*",
	AllowCodes: []string{"200-299"},
	FatalCodes: []string{"401", "403"},
	SoftCodes:  []string{"429", "500-599"},
}

func init() {
	provider.Register("hetzner", New)
}

type Provider struct {
	name    string
	token   string
	baseURL string
	rule    rule.Rule
	exec    *provider.Exec

	mu    sync.Mutex
	zones map[string]string // zone name to ID
}

func New(name string, spec config.ProviderSpec, exec *provider.Exec) (provider.Provider, error) {
	token := spec.Credentials["apiToken"]
	if token == "" {
		return nil, fmt.Errorf("hetzner provider %q: credential apiToken is required", name)
	}

	baseURL := spec.Credentials["baseUrl"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	r, err := rule.Compile(ruleSpec)
	if err != nil {
		return nil, fmt.Errorf("hetzner provider %q: %w", name, err)
	}

	return &Provider{
		name:    name,
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		rule:    r,
		exec:    exec,
		zones:   make(map[string]string),
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Apply(ctx context.Context, req provider.Request) provider.Outcome {
	zoneID, out := p.zoneID(ctx, req.Zone)
	if out.Kind != provider.KindApplied {
		return out
	}

	tctx := template.NewContext(req.IP.String(), req.Name, req.Zone, nil)
	tctx["type"] = req.Type
	tctx["zone_id"] = zoneID

	path, err := template.Render(recordsPathTemplate, tctx, template.ModeURL)
	if err != nil {
		return provider.Fatalf("render records path: %v", err)
	}

	status, body, err := p.get(ctx, p.baseURL+path)
	if err != nil {
		return provider.Retryablef("fetch records: %v", err)
	}
	if out := p.rule.Interpret(status, body); out.Kind != provider.KindApplied {
		return out
	}

	record, found := findRecord(body, req.Name, req.Type)
	if found && record.value == req.IP.String() {
		return provider.Unchanged()
	}

	method := http.MethodPost
	writePath := "/records"
	if found {
		method = http.MethodPut
		tctx["record_id"] = record.id
		writePath, err = template.Render(recordPathTemplate, tctx, template.ModeURL)
		if err != nil {
			return provider.Fatalf("render record path: %v", err)
		}
	}

	reqBody, err := template.Render(bodyTemplate, tctx, template.ModeJSON)
	if err != nil {
		return provider.Fatalf("render record body: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+writePath, strings.NewReader(reqBody))
	if err != nil {
		return provider.Fatalf("create record request: %v", err)
	}
	p.decorate(httpReq)

	status, body, err = p.exec.Do(ctx, p.name, httpReq)
	if err != nil {
		return provider.Retryablef("http request: %v", err)
	}

	out = p.rule.Interpret(status, body)
	if out.Kind == provider.KindApplied {
		out.IP = req.IP
	}
	return out
}

// zoneID resolves a zone name to its Hetzner zone ID, cached for the
// provider's lifetime. An unknown zone is a configuration problem, not
// a transient condition.
func (p *Provider) zoneID(ctx context.Context, zone string) (string, provider.Outcome) {
	p.mu.Lock()
	id, ok := p.zones[zone]
	p.mu.Unlock()
	if ok {
		return id, provider.Outcome{Kind: provider.KindApplied}
	}

	status, body, err := p.get(ctx, p.baseURL+zonesPath)
	if err != nil {
		return "", provider.Retryablef("fetch zones: %v", err)
	}
	if out := p.rule.Interpret(status, body); out.Kind != provider.KindApplied {
		return "", out
	}

	gjson.GetBytes(body, "zones").ForEach(func(_, z gjson.Result) bool {
		if z.Get("name").String() == zone {
			id = z.Get("id").String()
			return false
		}
		return true
	})
	if id == "" {
		return "", provider.Fatalf("zone %q not found", zone)
	}

	p.mu.Lock()
	p.zones[zone] = id
	p.mu.Unlock()
	return id, provider.Outcome{Kind: provider.KindApplied}
}

func (p *Provider) get(ctx context.Context, url string) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	p.decorate(httpReq)
	return p.exec.Do(ctx, p.name, httpReq)
}

func (p *Provider) decorate(req *http.Request) {
	req.Header.Set("Auth-API-Token", p.token)
	req.Header.Set("Content-Type", "application/json")
}

type recordInfo struct {
	id    string
	value string
}

// findRecord scans the records payload for a name and type match.
func findRecord(body []byte, name, recordType string) (recordInfo, bool) {
	var rec recordInfo
	found := false

	gjson.GetBytes(body, "records").ForEach(func(_, r gjson.Result) bool {
		if r.Get("name").String() == name && r.Get("type").String() == recordType {
			rec = recordInfo{id: r.Get("id").String(), value: r.Get("value").String()}
			found = true
			return false
		}
		return true
	})
	return rec, found
}
