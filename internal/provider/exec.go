package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/evanofslack/ddns-sync/internal/metrics"
)

const maxResponseBytes = 1 << 20

// Exec is the single HTTP execution step shared by all providers. Every
// provider request goes through Do so timeouts and instrumentation are
// uniform.
type Exec struct {
	client  *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewExec(timeout time.Duration, m *metrics.Metrics) *Exec {
	return &Exec{
		client:  &http.Client{},
		timeout: timeout,
		metrics: m,
	}
}

func (e *Exec) Metrics() *metrics.Metrics {
	return e.metrics
}

// Do executes req with the shared deadline and returns the status code
// and body. Transport errors, including deadline expiry, come back as
// an error for the caller to classify.
func (e *Exec) Do(ctx context.Context, providerName string, req *http.Request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Do(req.WithContext(ctx))
	if err != nil {
		e.metrics.IncProviderRequest(providerName, false)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		e.metrics.IncProviderRequest(providerName, false)
		return resp.StatusCode, nil, err
	}

	e.metrics.IncProviderRequest(providerName, true)
	slog.Debug("Provider request complete",
		"provider", providerName,
		"method", req.Method,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return resp.StatusCode, body, nil
}
