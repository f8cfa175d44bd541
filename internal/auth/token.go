package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenRequest describes an HS256 token to mint for local development and
// tests. Production deployments are expected to use an external issuer.
type TokenRequest struct {
	UserID   int64
	Username string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type tokenClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for req.UserID with secret.
func IssueToken(secret string, req TokenRequest) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}
	if req.UserID <= 0 {
		return "", errors.New("user id must be positive")
	}
	if req.TTL <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := time.Now()
	claims := tokenClaims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(req.UserID, 10),
			Issuer:    req.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(req.TTL)),
		},
	}
	if req.Audience != "" {
		claims.Audience = jwt.ClaimStrings{req.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
