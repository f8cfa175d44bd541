package mcp

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskpulse/internal/auth"
	"github.com/btouchard/taskpulse/internal/mcp/handlers"
)

// SessionTracker records which user owns an MCP session, so completion
// notices can be pushed to the right sessions.
type SessionTracker interface {
	Register(sessionID string, userID int64)
	Unregister(sessionID string)
}

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Tasks    handlers.TaskService
	Sessions SessionTracker
	Version  string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	hooks := &server.Hooks{}
	if deps.Sessions != nil {
		hooks.AddBeforeAny(func(ctx context.Context, _ any, _ mcp.MCPMethod, _ any) {
			trackSession(ctx, deps.Sessions)
		})
		hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
			deps.Sessions.Unregister(session.SessionID())
		})
	}

	s := server.NewMCPServer(
		"TaskPulse",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithHooks(hooks),
	)

	registerTools(s, deps)

	return s
}

// NewHTTPHandler serves s over streamable HTTP. The user id set by the
// bearer middleware is carried into every tool call.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id, ok := auth.UserIDFromContext(r.Context()); ok {
				return auth.WithUserID(ctx, id)
			}
			return ctx
		}),
	)
}

func trackSession(ctx context.Context, sessions SessionTracker) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return
	}
	session := server.ClientSessionFromContext(ctx)
	if session == nil || session.SessionID() == "" {
		return
	}
	sessions.Register(session.SessionID(), userID)
}
