// Package nitrado implements the builtin Nitrado DNS provider. The
// request shape is fixed; only credentials and the update context vary.
package nitrado

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/rule"
	"github.com/evanofslack/ddns-sync/internal/template"
)

const defaultBaseURL = "https://api.nitrado.net"

const (
	recordsPathTemplate = "/domain/{zone}/records"
	createBodyTemplate  = `{{"name":"{record}","type":"{type}","content":"{ip}"}}`
	updateBodyTemplate  = `{{"name":"{record}","type":"{type}","content":"{content}","new_content":"{ip}"}}`
)

// Nitrado responses wrap everything in {"status": ..., "data": ...};
// bad tokens come back as 401/403.
var ruleSpec = config.ResponseRule{
	Type:       "json",
	Path:       "status",
	Expect:     []string{"success"},
	FatalCodes: []string{"401", "403"},
	SoftCodes:  []string{"429", "500-599"},
}

func init() {
	provider.Register("nitrado", New)
}

type Provider struct {
	name    string
	token   string
	baseURL string
	rule    rule.Rule
	exec    *provider.Exec
}

func New(name string, spec config.ProviderSpec, exec *provider.Exec) (provider.Provider, error) {
	token := spec.Credentials["token"]
	if token == "" {
		return nil, fmt.Errorf("nitrado provider %q: credential token is required", name)
	}

	baseURL := spec.Credentials["baseUrl"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	r, err := rule.Compile(ruleSpec)
	if err != nil {
		return nil, fmt.Errorf("nitrado provider %q: %w", name, err)
	}

	return &Provider{
		name:    name,
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		rule:    r,
		exec:    exec,
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Apply(ctx context.Context, req provider.Request) provider.Outcome {
	tctx := p.context(req)

	path, err := template.Render(recordsPathTemplate, tctx, template.ModeURL)
	if err != nil {
		return provider.Fatalf("render records path: %v", err)
	}
	url := p.baseURL + path

	// Look up the current record first so an unchanged value skips the
	// write call entirely.
	status, body, err := p.get(ctx, url)
	if err != nil {
		return provider.Retryablef("fetch records: %v", err)
	}
	if out := p.rule.Interpret(status, body); out.Kind != provider.KindApplied {
		return out
	}

	current, found := findRecord(body, req.Name, req.Type)
	if found && current == req.IP.String() {
		return provider.Unchanged()
	}

	method := http.MethodPost
	bodyTemplate := createBodyTemplate
	if found {
		method = http.MethodPut
		bodyTemplate = updateBodyTemplate
		tctx["content"] = current
	}

	reqBody, err := template.Render(bodyTemplate, tctx, template.ModeJSON)
	if err != nil {
		return provider.Fatalf("render update body: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(reqBody))
	if err != nil {
		return provider.Fatalf("create update request: %v", err)
	}
	p.decorate(httpReq)

	status, body, err = p.exec.Do(ctx, p.name, httpReq)
	if err != nil {
		return provider.Retryablef("http request: %v", err)
	}

	out := p.rule.Interpret(status, body)
	if out.Kind == provider.KindApplied {
		out.IP = req.IP
	}
	return out
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
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) context(req provider.Request) template.Context {
	tctx := template.NewContext(req.IP.String(), req.Name, req.Zone, nil)
	tctx["type"] = req.Type
	return tctx
}

// findRecord scans the records payload for a name and type match and
// returns the current content value.
func findRecord(body []byte, name, recordType string) (string, bool) {
	var content string
	found := false

	gjson.GetBytes(body, "data.records").ForEach(func(_, rec gjson.Result) bool {
		if rec.Get("name").String() == name && rec.Get("type").String() == recordType {
			content = rec.Get("content").String()
			found = true
			return false
		}
		return true
	})
	return content, found
}
