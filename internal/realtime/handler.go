package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/btouchard/taskpulse/internal/auth"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// Options tunes connection handling. Zero fields take defaults.
type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// Handler upgrades HTTP requests to WebSocket connections. The bearer token
// is verified during the handshake; a connection is registered only once
// its token checks out.
type Handler struct {
	hub      *Hub
	authn    Authenticator
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, authn Authenticator, opts Options) *Handler {
	opts = opts.withDefaults()
	h := &Handler{hub: hub, authn: authn, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	userID, err := h.authenticate(r)
	if err != nil {
		h.reject(conn, r, err)
		return
	}

	c := newClient(uuid.NewString(), userID, conn, h.opts.SendBuffer)
	h.hub.attach(c)
	go c.writePump(h.opts)
	c.readPump(h.hub, h.opts)
	h.hub.detach(c)
}

func (h *Handler) authenticate(r *http.Request) (int64, error) {
	token, err := auth.TokenFromRequest(r, true)
	if err != nil {
		return 0, err
	}
	return h.authn.Verify(r.Context(), token)
}

// reject tells the client why and closes the socket. Nothing is registered.
func (h *Handler) reject(conn *websocket.Conn, r *http.Request, reason error) {
	handshakeFailures.Inc()
	slog.Warn("websocket authentication failed", "remote", r.RemoteAddr, "error", reason)

	deadline := time.Now().Add(h.opts.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if msg, err := encode(EventError, ErrorData{Message: authFailedMessage}); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, authFailedMessage), deadline)
	_ = conn.Close()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.opts.AllowedOrigins, origin)
}
