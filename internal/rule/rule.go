// Package rule classifies provider HTTP responses into outcomes.
package rule

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

// Rule turns a raw response into an Outcome. All classification happens
// here; the scheduler never re-interprets response bytes.
type Rule interface {
	Interpret(status int, body []byte) provider.Outcome
}

// Compile builds a Rule from its configured form. Invalid regex
// patterns, paths and code ranges are rejected here, at load time.
func Compile(cfg config.ResponseRule) (Rule, error) {
	codes, err := compileCodes(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "raw":
		return compileRawMatch(cfg, codes)
	case "json":
		return compileJSONExtract(cfg, codes)
	default:
		return nil, fmt.Errorf("response rule type must be raw or json, got %q", cfg.Type)
	}
}

func compileRawMatch(cfg config.ResponseRule, codes codeSets) (Rule, error) {
	if cfg.Success == "" {
		return nil, fmt.Errorf("raw response rule requires a success pattern")
	}
	success, err := regexp.Compile(cfg.Success)
	if err != nil {
		return nil, fmt.Errorf("compile success pattern: %w", err)
	}

	var failures []*regexp.Regexp
	for _, p := range cfg.Failure {
		f, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile failure pattern %q: %w", p, err)
		}
		failures = append(failures, f)
	}
	return &rawMatch{success: success, failures: failures, codes: codes}, nil
}

func compileJSONExtract(cfg config.ResponseRule, codes codeSets) (Rule, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("json response rule requires a field path")
	}
	if len(cfg.Expect) == 0 {
		return nil, fmt.Errorf("json response rule requires expected values")
	}
	expect := make(map[string]bool, len(cfg.Expect))
	for _, v := range cfg.Expect {
		expect[v] = true
	}
	return &jsonExtract{path: cfg.Path, expect: expect, codes: codes}, nil
}

// rawMatch classifies by body patterns: success pattern means applied,
// a declared failure pattern means a credential or config problem, and
// anything unrecognized is assumed transient.
type rawMatch struct {
	success  *regexp.Regexp
	failures []*regexp.Regexp
	codes    codeSets
}

func (r *rawMatch) Interpret(status int, body []byte) provider.Outcome {
	if out, decided := r.codes.check(status); decided {
		return out
	}

	if r.success.Match(body) {
		return provider.Outcome{Kind: provider.KindApplied}
	}
	for _, f := range r.failures {
		if f.Match(body) {
			return provider.Fatalf("response matched failure pattern %q: %s", f.String(), snippet(body))
		}
	}
	return provider.Retryablef("unrecognized response: %s", snippet(body))
}

type jsonExtract struct {
	path   string
	expect map[string]bool
	codes  codeSets
}

func (r *jsonExtract) Interpret(status int, body []byte) provider.Outcome {
	if out, decided := r.codes.check(status); decided {
		return out
	}

	// Declared fatal status codes were already handled above, so a body
	// that fails to parse is assumed transient.
	if !gjson.ValidBytes(body) {
		return provider.Retryablef("malformed JSON response: %s", snippet(body))
	}

	val := gjson.GetBytes(body, r.path)
	if !val.Exists() {
		return provider.Retryablef("field %q missing from response: %s", r.path, snippet(body))
	}
	if r.expect[val.String()] {
		return provider.Outcome{Kind: provider.KindApplied}
	}
	return provider.Fatalf("field %q is %q, expected one of %v", r.path, val.String(), keys(r.expect))
}

// codeSets holds the optional status-code lists. When an allow-list is
// present it is checked before the body: codes outside it are fatal
// unless declared soft-retryable.
type codeSets struct {
	allow codeSet
	soft  codeSet
	fatal codeSet
}

func (c codeSets) check(status int) (provider.Outcome, bool) {
	if c.soft.contains(status) {
		return provider.Retryablef("status code %d in soft-retry set", status), true
	}
	if c.fatal.contains(status) {
		return provider.Fatalf("status code %d in fatal set", status), true
	}
	if !c.allow.empty() && !c.allow.contains(status) {
		return provider.Fatalf("status code %d outside allow-list", status), true
	}
	return provider.Outcome{}, false
}

type codeRange struct {
	lo, hi int
}

type codeSet []codeRange

func (s codeSet) empty() bool {
	return len(s) == 0
}

func (s codeSet) contains(code int) bool {
	for _, r := range s {
		if code >= r.lo && code <= r.hi {
			return true
		}
	}
	return false
}

func compileCodes(cfg config.ResponseRule) (codeSets, error) {
	allow, err := parseCodeSet(cfg.AllowCodes)
	if err != nil {
		return codeSets{}, fmt.Errorf("allow codes: %w", err)
	}
	soft, err := parseCodeSet(cfg.SoftCodes)
	if err != nil {
		return codeSets{}, fmt.Errorf("soft codes: %w", err)
	}
	fatal, err := parseCodeSet(cfg.FatalCodes)
	if err != nil {
		return codeSets{}, fmt.Errorf("fatal codes: %w", err)
	}
	return codeSets{allow: allow, soft: soft, fatal: fatal}, nil
}

// parseCodeSet accepts entries like "401" and "500-599".
func parseCodeSet(entries []string) (codeSet, error) {
	var set codeSet
	for _, e := range entries {
		lo, hi, ok := strings.Cut(e, "-")
		if !ok {
			hi = lo
		}
		loN, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q", e)
		}
		hiN, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || hiN < loN {
			return nil, fmt.Errorf("invalid status code range %q", e)
		}
		set = append(set, codeRange{lo: loN, hi: hiN})
	}
	return set, nil
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
