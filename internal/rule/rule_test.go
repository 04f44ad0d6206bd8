package rule

import (
	"testing"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

func TestRawMatch(t *testing.T) {
	cfg := config.ResponseRule{
		Type:    "raw",
		Success: "OK",
		Failure: []string{"badauth", "abuse"},
	}
	r, err := Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	tests := []struct {
		name     string
		status   int
		body     string
		expected provider.Kind
	}{
		{
			name:     "success pattern applied",
			status:   200,
			body:     "OK updated",
			expected: provider.KindApplied,
		},
		{
			name:     "failure pattern fatal",
			status:   200,
			body:     "badauth",
			expected: provider.KindFatal,
		},
		{
			name:     "unrecognized body retryable",
			status:   200,
			body:     "service temporarily unavailable",
			expected: provider.KindRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Interpret(tt.status, []byte(tt.body))
			if out.Kind != tt.expected {
				t.Errorf("got %s, want %s (reason %q)", out.Kind, tt.expected, out.Reason)
			}
		})
	}
}

func TestJSONExtract(t *testing.T) {
	cfg := config.ResponseRule{
		Type:       "json",
		Path:       "status",
		Expect:     []string{"success"},
		FatalCodes: []string{"401", "403"},
		SoftCodes:  []string{"429", "500-599"},
	}
	r, err := Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	tests := []struct {
		name     string
		status   int
		body     string
		expected provider.Kind
	}{
		{
			name:     "expected value applied",
			status:   200,
			body:     `{"status":"success","data":{}}`,
			expected: provider.KindApplied,
		},
		{
			name:     "fatal status code before body",
			status:   401,
			body:     `{"status":"error","msg":"bad auth"}`,
			expected: provider.KindFatal,
		},
		{
			name:     "unexpected value fatal",
			status:   200,
			body:     `{"status":"error","msg":"record rejected"}`,
			expected: provider.KindFatal,
		},
		{
			name:     "missing path retryable",
			status:   200,
			body:     `{"result":"fine"}`,
			expected: provider.KindRetryable,
		},
		{
			name:     "malformed json retryable",
			status:   200,
			body:     `<html>gateway error</html>`,
			expected: provider.KindRetryable,
		},
		{
			name:     "soft code retryable",
			status:   503,
			body:     ``,
			expected: provider.KindRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Interpret(tt.status, []byte(tt.body))
			if out.Kind != tt.expected {
				t.Errorf("got %s, want %s (reason %q)", out.Kind, tt.expected, out.Reason)
			}
		})
	}
}

func TestJSONExtractNestedPath(t *testing.T) {
	cfg := config.ResponseRule{
		Type:   "json",
		Path:   "data.record.state",
		Expect: []string{"active", "updated"},
	}
	r, err := Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	out := r.Interpret(200, []byte(`{"data":{"record":{"state":"updated"}}}`))
	if out.Kind != provider.KindApplied {
		t.Errorf("got %s, want applied (reason %q)", out.Kind, out.Reason)
	}
}

func TestAllowList(t *testing.T) {
	cfg := config.ResponseRule{
		Type:       "raw",
		Success:    "good",
		AllowCodes: []string{"200"},
		SoftCodes:  []string{"502"},
	}
	r, err := Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if out := r.Interpret(404, []byte("good")); out.Kind != provider.KindFatal {
		t.Errorf("code outside allow-list: got %s, want fatal", out.Kind)
	}
	if out := r.Interpret(502, []byte("")); out.Kind != provider.KindRetryable {
		t.Errorf("soft code: got %s, want retryable", out.Kind)
	}
	if out := r.Interpret(200, []byte("good")); out.Kind != provider.KindApplied {
		t.Errorf("allowed code with success body: got %s, want applied", out.Kind)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ResponseRule
	}{
		{
			name: "unknown type",
			cfg:  config.ResponseRule{Type: "xml"},
		},
		{
			name: "invalid success regex",
			cfg:  config.ResponseRule{Type: "raw", Success: "("},
		},
		{
			name: "invalid failure regex",
			cfg:  config.ResponseRule{Type: "raw", Success: "OK", Failure: []string{"["}},
		},
		{
			name: "missing json path",
			cfg:  config.ResponseRule{Type: "json", Expect: []string{"ok"}},
		},
		{
			name: "missing expect values",
			cfg:  config.ResponseRule{Type: "json", Path: "status"},
		},
		{
			name: "invalid code entry",
			cfg:  config.ResponseRule{Type: "raw", Success: "OK", FatalCodes: []string{"4xx"}},
		},
		{
			name: "inverted code range",
			cfg:  config.ResponseRule{Type: "raw", Success: "OK", SoftCodes: []string{"599-500"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.cfg); err == nil {
				t.Error("expected compile error")
			}
		})
	}
}
