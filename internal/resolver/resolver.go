// Package resolver determines the current public IP address by querying
// external echo endpoints.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
)

// ErrAllUnreachable reports that every configured echo endpoint for the
// requested family failed or timed out.
var ErrAllUnreachable = errors.New("all echo endpoints unreachable")

const maxBodyBytes = 64 << 10

type cached struct {
	addr netip.Addr
	at   time.Time
}

// Resolver queries echo endpoints in order and caches the last
// successful result per family. Many records sharing a polling tick hit
// the cache instead of the echo services.
type Resolver struct {
	client    *http.Client
	endpoints map[string][]config.Endpoint
	cacheTTL  time.Duration
	timeout   time.Duration
	metrics   *metrics.Metrics

	mu    sync.Mutex
	cache map[string]cached
	now   func() time.Time
}

func New(cfg config.Resolver, m *metrics.Metrics) *Resolver {
	return &Resolver{
		client: &http.Client{},
		endpoints: map[string][]config.Endpoint{
			"ipv4": cfg.IPv4,
			"ipv6": cfg.IPv6,
		},
		cacheTTL: cfg.CacheTTL,
		timeout:  cfg.Timeout,
		metrics:  m,
		cache:    make(map[string]cached),
		now:      time.Now,
	}
}

// Resolve returns the current public address for family ("ipv4" or
// "ipv6"). force bypasses the cache, used to rule out a stale address
// after a fatal provider response.
func (r *Resolver) Resolve(ctx context.Context, family string, force bool) (netip.Addr, error) {
	eps, ok := r.endpoints[family]
	if !ok || len(eps) == 0 {
		return netip.Addr{}, fmt.Errorf("no echo endpoints configured for family %q", family)
	}

	if !force {
		r.mu.Lock()
		c, ok := r.cache[family]
		r.mu.Unlock()
		if ok && r.now().Sub(c.at) < r.cacheTTL {
			r.metrics.IncResolverCacheHit(family)
			return c.addr, nil
		}
	}

	var errs []error
	for _, ep := range eps {
		addr, err := r.lookup(ctx, family, ep)
		if err != nil {
			r.metrics.IncResolverRequest(family, false)
			slog.Debug("Echo endpoint failed", "url", ep.URL, "family", family, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ep.URL, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		r.metrics.IncResolverRequest(family, true)
		r.mu.Lock()
		r.cache[family] = cached{addr: addr, at: r.now()}
		r.mu.Unlock()
		return addr, nil
	}

	return netip.Addr{}, fmt.Errorf("%w: %w", ErrAllUnreachable, errors.Join(errs...))
}

func (r *Resolver) lookup(ctx context.Context, family string, ep config.Endpoint) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("read response: %w", err)
	}

	raw := strings.TrimSpace(string(body))
	if ep.JSONPath != "" {
		val := gjson.Get(raw, ep.JSONPath)
		if !val.Exists() {
			return netip.Addr{}, fmt.Errorf("field %q missing from response", ep.JSONPath)
		}
		raw = val.String()
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse address %q: %w", raw, err)
	}
	if !matchesFamily(addr, family) {
		return netip.Addr{}, fmt.Errorf("address %s is not %s", addr, family)
	}
	return addr, nil
}

func matchesFamily(addr netip.Addr, family string) bool {
	if family == "ipv6" {
		return addr.Is6() && !addr.Is4In6()
	}
	return addr.Is4() || addr.Is4In6()
}
