// Package tunnel publishes the local server on a public HTTPS URL so remote
// clients can reach the REST, WebSocket and MCP endpoints.
package tunnel

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
)

// Tunnel exposes a local address via a public HTTPS URL.
type Tunnel interface {
	Start(ctx context.Context, localAddr string) (publicURL string, err error)
	Close() error
	PublicURL() string
	Listener() net.Listener
}

// Serve starts t and serves srv's handler on it until the listener closes.
// It returns the public URL once the tunnel is up; serve errors are logged.
func Serve(ctx context.Context, t Tunnel, srv *http.Server) (string, error) {
	url, err := t.Start(ctx, srv.Addr)
	if err != nil {
		return "", err
	}

	go func() {
		if err := srv.Serve(t.Listener()); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			slog.Error("tunnel server error", "public_url", url, "error", err)
		}
	}()

	return url, nil
}
