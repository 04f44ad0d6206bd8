// Package custom implements the template-driven provider variant. The
// request shape is configured declaratively; no recompilation is needed
// to support a new vendor's wire protocol.
package custom

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
	"github.com/evanofslack/ddns-sync/internal/rule"
	"github.com/evanofslack/ddns-sync/internal/template"
)

func init() {
	provider.Register("custom", New)
}

type Provider struct {
	name string
	spec config.ProviderSpec
	rule rule.Rule
	exec *provider.Exec
}

func New(name string, spec config.ProviderSpec, exec *provider.Exec) (provider.Provider, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("custom provider %q: url is required", name)
	}

	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("custom provider %q: unsupported method %q", name, spec.Method)
	}
	spec.Method = method

	r, err := rule.Compile(spec.Response)
	if err != nil {
		return nil, fmt.Errorf("custom provider %q: %w", name, err)
	}

	// Config validation already checked placeholders, but a provider
	// constructed outside config.Load must fail fast here too.
	keys := map[string]bool{"ip": true, "record": true, "zone": true}
	for k := range spec.Credentials {
		keys[k] = true
	}
	tmpls := []string{spec.URL, spec.Body}
	for _, v := range spec.Headers {
		tmpls = append(tmpls, v)
	}
	for _, tmpl := range tmpls {
		if err := template.Validate(tmpl, keys); err != nil {
			return nil, fmt.Errorf("custom provider %q: %w", name, err)
		}
	}

	return &Provider{name: name, spec: spec, rule: r, exec: exec}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Apply(ctx context.Context, req provider.Request) provider.Outcome {
	tctx := template.NewContext(req.IP.String(), req.Name, req.Zone, p.spec.Credentials)

	httpReq, err := p.build(ctx, tctx)
	if err != nil {
		// Templates were validated at load time, so a render failure is
		// a configuration problem and not worth retrying.
		return provider.Fatalf("build request: %v", err)
	}

	status, body, err := p.exec.Do(ctx, p.name, httpReq)
	if err != nil {
		return provider.Retryablef("http request: %v", err)
	}

	out := p.rule.Interpret(status, body)
	if out.Kind == provider.KindApplied {
		out.IP = req.IP
	}
	slog.Debug("Custom provider response classified",
		"provider", p.name, "status", status, "outcome", out.Kind.String())
	return out
}

func (p *Provider) build(ctx context.Context, tctx template.Context) (*http.Request, error) {
	url, err := template.Render(p.spec.URL, tctx, template.ModeURL)
	if err != nil {
		return nil, fmt.Errorf("render url: %w", err)
	}

	bodyMode := template.ModeRaw
	if p.spec.BodyJSON {
		bodyMode = template.ModeJSON
	}
	rendered, err := template.Render(p.spec.Body, tctx, bodyMode)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, p.spec.Method, url, strings.NewReader(rendered))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range p.spec.Headers {
		val, err := template.Render(v, tctx, template.ModeRaw)
		if err != nil {
			return nil, fmt.Errorf("render header %q: %w", k, err)
		}
		httpReq.Header.Set(k, val)
	}
	if p.spec.BodyJSON && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}
