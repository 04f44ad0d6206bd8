package config

import (
	"errors"
	"fmt"

	"github.com/evanofslack/ddns-sync/internal/template"
)

// Validate rejects configurations the update engine cannot run with.
// Rule patterns are compiled when providers are constructed, so between
// the two every configuration error stops the process before the first
// scheduler tick.
func (cfg *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for _, r := range cfg.Records {
		if r.Zone == "" {
			errs = append(errs, fmt.Errorf("record %q: zone is required", r.Name))
		}
		if r.Family != "ipv4" && r.Family != "ipv6" {
			errs = append(errs, fmt.Errorf("record %q: family must be ipv4 or ipv6, got %q", r.Key(), r.Family))
		}
		if seen[r.Key()] {
			errs = append(errs, fmt.Errorf("duplicate record identity %q", r.Key()))
		}
		seen[r.Key()] = true

		if r.Provider == "" {
			errs = append(errs, fmt.Errorf("record %q: provider is required", r.Key()))
		} else if _, ok := cfg.Providers[r.Provider]; !ok {
			errs = append(errs, fmt.Errorf("record %q: unknown provider %q", r.Key(), r.Provider))
		}
	}

	for name, spec := range cfg.Providers {
		if spec.Type == "" {
			errs = append(errs, fmt.Errorf("provider %q: type is required", name))
		}
		if spec.Type == "custom" {
			errs = append(errs, spec.validateCustom(name)...)
		}
	}

	return errors.Join(errs...)
}

func (spec ProviderSpec) validateCustom(name string) []error {
	var errs []error

	if spec.URL == "" {
		errs = append(errs, fmt.Errorf("provider %q: url is required", name))
	}

	switch spec.Response.Type {
	case "raw":
		if spec.Response.Success == "" {
			errs = append(errs, fmt.Errorf("provider %q: response success pattern is required", name))
		}
	case "json":
		if spec.Response.Path == "" {
			errs = append(errs, fmt.Errorf("provider %q: response path is required", name))
		}
		if len(spec.Response.Expect) == 0 {
			errs = append(errs, fmt.Errorf("provider %q: response expect values are required", name))
		}
	default:
		errs = append(errs, fmt.Errorf("provider %q: response type must be raw or json, got %q", name, spec.Response.Type))
	}

	// Every placeholder must resolve at load time, never at render time.
	keys := spec.placeholderKeys()
	for _, tmpl := range spec.templates() {
		if err := template.Validate(tmpl, keys); err != nil {
			errs = append(errs, fmt.Errorf("provider %q: %w", name, err))
		}
	}
	return errs
}

func (spec ProviderSpec) placeholderKeys() map[string]bool {
	keys := map[string]bool{"ip": true, "record": true, "zone": true}
	for k := range spec.Credentials {
		keys[k] = true
	}
	return keys
}

func (spec ProviderSpec) templates() []string {
	tmpls := []string{spec.URL, spec.Body}
	for _, v := range spec.Headers {
		tmpls = append(tmpls, v)
	}
	return tmpls
}
