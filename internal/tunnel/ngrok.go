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

// ErrMissingAuthToken is returned by Start when no ngrok token is configured.
var ErrMissingAuthToken = errors.New("ngrok auth token is required (set tunnel.authtoken in config or TASKPULSE_NGROK_AUTHTOKEN env var)")

type listenFunc func(ctx context.Context, cfg ngrokconfig.Tunnel, opts ...ngroklib.ConnectOption) (ngroklib.Tunnel, error)

// NgrokTunnel implements the Tunnel interface using ngrok.
type NgrokTunnel struct {
	authToken string
	domain    string
	listen    listenFunc

	listener net.Listener
	url      string
}

// NewNgrok creates a new ngrok tunnel with the given auth token and optional domain.
func NewNgrok(authToken, domain string) *NgrokTunnel {
	return &NgrokTunnel{
		authToken: authToken,
		domain:    domain,
		listen:    ngroklib.Listen,
	}
}

// Start opens the ngrok endpoint and returns its public URL. localAddr is
// only logged; ngrok hands back its own listener.
func (n *NgrokTunnel) Start(ctx context.Context, localAddr string) (string, error) {
	if n.authToken == "" {
		return "", ErrMissingAuthToken
	}

	slog.Info("starting ngrok tunnel", "local_addr", localAddr, "domain", n.domain)

	var opts []ngrokconfig.HTTPEndpointOption
	if n.domain != "" {
		opts = append(opts, ngrokconfig.WithDomain(n.domain))
	}

	listener, err := n.listen(ctx, ngrokconfig.HTTPEndpoint(opts...), ngroklib.WithAuthtoken(n.authToken))
	if err != nil {
		return "", fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}

	n.listener = listener
	n.url = normalizeURL(listener.Addr().String())

	slog.Info("ngrok tunnel established", "public_url", n.url)

	return n.url, nil
}

// Close closes the ngrok tunnel.
func (n *NgrokTunnel) Close() error {
	if n.listener == nil {
		return nil
	}

	slog.Info("closing ngrok tunnel", "public_url", n.url)

	if err := n.listener.Close(); err != nil {
		return fmt.Errorf("failed to close ngrok tunnel: %w", err)
	}

	n.listener = nil
	n.url = ""

	return nil
}

// PublicURL returns the public URL of the tunnel.
func (n *NgrokTunnel) PublicURL() string {
	return n.url
}

// Listener returns the underlying net.Listener for serving HTTP requests.
func (n *NgrokTunnel) Listener() net.Listener {
	return n.listener
}

func normalizeURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "https://" + addr
}
