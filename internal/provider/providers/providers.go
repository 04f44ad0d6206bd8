// Package providers imports all provider packages to trigger their
// init() registration.
package providers

import (
	_ "github.com/evanofslack/ddns-sync/internal/provider/cloudflare"
	_ "github.com/evanofslack/ddns-sync/internal/provider/custom"
	_ "github.com/evanofslack/ddns-sync/internal/provider/hetzner"
	_ "github.com/evanofslack/ddns-sync/internal/provider/netcup"
	_ "github.com/evanofslack/ddns-sync/internal/provider/nitrado"
)
