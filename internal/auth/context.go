package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ctxKey struct{}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok && id > 0
}

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrMalformedHeader = errors.New("invalid Authorization header format")
)

// TokenFromRequest extracts the bearer credential from the Authorization
// header. When allowQuery is set, a token query parameter is accepted as
// well, since browsers cannot set headers on WebSocket handshakes.
func TokenFromRequest(r *http.Request, allowQuery bool) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", ErrMalformedHeader
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if allowQuery {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
	}

	return "", ErrMissingToken
}
