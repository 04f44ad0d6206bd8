package template

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Mode selects the escaping applied to substituted values.
type Mode int

const (
	ModeRaw Mode = iota
	ModeURL
	ModeJSON
)

// Context holds the values available for {placeholder} substitution.
// The core keys ip, record and zone are always present; provider
// credential fields are merged in at construction.
type Context map[string]string

func NewContext(ip, record, zone string, credentials map[string]string) Context {
	ctx := make(Context, len(credentials)+3)
	for k, v := range credentials {
		ctx[k] = v
	}
	ctx["ip"] = ip
	ctx["record"] = record
	ctx["zone"] = zone
	return ctx
}

// Render substitutes {placeholder} tokens in s from ctx. Literal braces
// are written as {{ and }}. In ModeURL, placeholders before the first
// literal "?" are path-escaped and placeholders after it are
// query-escaped. An unresolved placeholder returns an error; templates
// accepted by Validate never hit that path at runtime.
func Render(s string, ctx Context, mode Mode) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	inQuery := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			key := s[i+1 : i+end]
			val, ok := ctx[key]
			if !ok {
				return "", fmt.Errorf("unresolved placeholder {%s}", key)
			}
			b.WriteString(escape(val, mode, inQuery))
			i += end
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
		default:
			if c == '?' {
				inQuery = true
			}
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Placeholders returns the distinct placeholder names referenced by s,
// in order of first appearance. Malformed templates yield an error.
func Placeholders(s string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder at offset %d", i)
		}
		key := s[i+1 : i+end]
		if key == "" {
			return nil, fmt.Errorf("empty placeholder at offset %d", i)
		}
		if !seen[key] {
			seen[key] = true
			names = append(names, key)
		}
		i += end
	}
	return names, nil
}

// Validate rejects templates referencing placeholders not present in
// keys. Called at configuration load so rendering cannot fail later.
func Validate(s string, keys map[string]bool) error {
	names, err := Placeholders(s)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !keys[name] {
			return fmt.Errorf("unresolved placeholder {%s}", name)
		}
	}
	return nil
}

func escape(val string, mode Mode, inQuery bool) string {
	switch mode {
	case ModeURL:
		if inQuery {
			return url.QueryEscape(val)
		}
		return url.PathEscape(val)
	case ModeJSON:
		// Marshal never fails for a string; strip the surrounding quotes.
		enc, _ := json.Marshal(val)
		return string(enc[1 : len(enc)-1])
	default:
		return val
	}
}
