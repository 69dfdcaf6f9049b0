package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

var errNoAuthToken = errors.New("ngrok auth token is required (set tunnel.authtoken or FIRSTBLOOD_NGROK_AUTHTOKEN)")

// NgrokTunnel implements Tunnel with an ngrok HTTP endpoint.
type NgrokTunnel struct {
	authToken string
	domain    string
	listener  net.Listener
	url       string
}

// NewNgrok creates an ngrok tunnel. An empty domain asks ngrok for a random one.
func NewNgrok(authToken, domain string) *NgrokTunnel {
	return &NgrokTunnel{
		authToken: authToken,
		domain:    domain,
	}
}

// Start opens the ngrok session and returns the public URL.
// Requests arrive on Listener(); the local address is not involved.
func (n *NgrokTunnel) Start(ctx context.Context) (string, error) {
	if n.authToken == "" {
		return "", errNoAuthToken
	}

	var opts []ngrokconfig.HTTPEndpointOption
	if n.domain != "" {
		opts = append(opts, ngrokconfig.WithDomain(n.domain))
	}

	slog.Info("starting ngrok tunnel", "domain", n.domain)
	listener, err := ngroklib.Listen(ctx,
		ngrokconfig.HTTPEndpoint(opts...),
		ngroklib.WithAuthtoken(n.authToken),
	)
	if err != nil {
		return "", fmt.Errorf("start ngrok tunnel: %w", err)
	}

	n.listener = listener
	n.url = publicURL(listener.Addr().String())

	slog.Info("ngrok tunnel established",
		"public_url", n.url,
		"solves_endpoint", SolvesEndpoint(n.url))

	return n.url, nil
}

// Close tears down the tunnel. Closing an unstarted tunnel is a no-op.
func (n *NgrokTunnel) Close() error {
	if n.listener == nil {
		return nil
	}

	slog.Info("closing ngrok tunnel", "public_url", n.url)
	err := n.listener.Close()
	n.listener = nil
	n.url = ""
	if err != nil {
		return fmt.Errorf("close ngrok tunnel: %w", err)
	}
	return nil
}

func (n *NgrokTunnel) PublicURL() string {
	return n.url
}

func (n *NgrokTunnel) Listener() net.Listener {
	return n.listener
}

func publicURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "https://" + addr
}
