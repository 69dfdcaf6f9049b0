package tunnel

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/btouchard/firstblood/internal/config"
)

// Tunnel publishes the local server on a public HTTPS URL, so a hosted
// scoreboard can post solves to the ingestion API of a locally run instance.
type Tunnel interface {
	Start(ctx context.Context) (publicURL string, err error)
	Listener() net.Listener
	PublicURL() string
	Close() error
}

// New returns the tunnel described by cfg, or nil when tunneling is disabled.
func New(cfg config.TunnelConfig) (Tunnel, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "ngrok":
		return NewNgrok(cfg.AuthToken, cfg.Domain), nil
	default:
		return nil, fmt.Errorf("unsupported tunnel provider %q", cfg.Provider)
	}
}

// SolvesEndpoint is the URL a platform should post solves to.
func SolvesEndpoint(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/api/solves"
}
