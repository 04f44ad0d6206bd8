// Package cloudflare implements the builtin Cloudflare provider on top
// of the official SDK rather than the shared template machinery.
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

// TTL of 1 selects Cloudflare's automatic TTL.
const autoTTL = 1

func init() {
	provider.Register("cloudflare", New)
}

type Provider struct {
	name   string
	client *cloudflare.API

	mu    sync.Mutex
	zones map[string]string // zone name to ID
}

func New(name string, spec config.ProviderSpec, _ *provider.Exec) (provider.Provider, error) {
	token := spec.Credentials["token"]
	if token == "" {
		return nil, fmt.Errorf("cloudflare provider %q: credential token is required", name)
	}

	client, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("cloudflare provider %q: create client: %w", name, err)
	}

	return &Provider{
		name:   name,
		client: client,
		zones:  make(map[string]string),
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Apply(ctx context.Context, req provider.Request) provider.Outcome {
	start := time.Now()

	zoneID, err := p.zoneID(req.Zone)
	if err != nil {
		return classify(fmt.Errorf("get zone ID for %s: %w", req.Zone, err))
	}
	rc := cloudflare.ZoneIdentifier(zoneID)

	records, _, err := p.client.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Type: req.Type,
		Name: req.FQDN(),
	})
	if err != nil {
		return classify(fmt.Errorf("list DNS records: %w", err))
	}

	content := req.IP.String()
	if len(records) > 0 {
		record := records[0]
		if record.Content == content {
			return provider.Unchanged()
		}
		_, err = p.client.UpdateDNSRecord(ctx, rc, cloudflare.UpdateDNSRecordParams{
			ID:      record.ID,
			Type:    req.Type,
			Name:    req.FQDN(),
			Content: content,
			TTL:     autoTTL,
		})
		if err != nil {
			return classify(fmt.Errorf("update DNS record: %w", err))
		}
	} else {
		_, err = p.client.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
			Type:    req.Type,
			Name:    req.FQDN(),
			Content: content,
			TTL:     autoTTL,
		})
		if err != nil {
			return classify(fmt.Errorf("create DNS record: %w", err))
		}
	}

	slog.Debug("Cloudflare record applied",
		"zone", req.Zone, "name", req.FQDN(), "type", req.Type, "duration", time.Since(start))
	return provider.Applied(req.IP)
}

func (p *Provider) zoneID(zone string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.zones[zone]; ok {
		return id, nil
	}
	id, err := p.client.ZoneIDByName(zone)
	if err != nil {
		return "", err
	}
	p.zones[zone] = id
	return id, nil
}

// classify maps SDK errors onto the shared outcome taxonomy: rejected
// credentials or permissions are fatal, everything else is assumed
// transient.
func classify(err error) provider.Outcome {
	var authn cloudflare.AuthenticationError
	var authz cloudflare.AuthorizationError
	if errors.As(err, &authn) || errors.As(err, &authz) {
		return provider.Fatalf("%v", err)
	}

	var notFound cloudflare.NotFoundError
	if errors.As(err, &notFound) {
		return provider.Fatalf("%v", err)
	}
	return provider.Retryablef("%v", err)
}
