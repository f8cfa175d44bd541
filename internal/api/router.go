// Package api exposes the task and user services over HTTP and mounts the
// WebSocket and MCP endpoints next to them.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/btouchard/taskpulse/internal/api/middleware"
)

const requestTimeout = 15 * time.Second

// Deps holds what the router mounts. Realtime and MCP are optional.
type Deps struct {
	Tasks    TaskService
	Users    UserService
	Verifier middleware.TokenVerifier
	Realtime http.Handler
	MCP      http.Handler
	Limiter  *middleware.IPRateLimiter
	Origins  []string
	Logger   *slog.Logger
}

// NewRouter builds the HTTP handler. Health and metrics are public, as is
// user registration; everything else needs a bearer token. The WebSocket
// endpoint authenticates during its own handshake.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Tracing)
	r.Use(middleware.Metrics)
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", middleware.MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Limiter))

		if d.Realtime != nil {
			r.Handle("/ws", d.Realtime)
		}

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Post("/users", createUser(d.Users))

			r.Group(func(r chi.Router) {
				r.Use(middleware.BearerAuth(d.Verifier))
				r.Get("/users/me", currentUser(d.Users))
				r.Get("/users/{id}", getUser(d.Users))
				registerTaskRoutes(r, d.Tasks)
			})
		})

		if d.MCP != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.BearerAuth(d.Verifier))
				r.Handle("/mcp", d.MCP)
			})
		}
	})

	return r
}
