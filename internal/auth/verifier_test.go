package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-signing-secret"
	testTTL    = time.Hour
)

func newHS256Verifier(t *testing.T, issuer, audience string) *Verifier {
	t.Helper()
	v, err := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: issuer, Audience: audience})
	require.NoError(t, err)
	return v
}

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestNewVerifier_RequiresKeyMaterial(t *testing.T) {
	t.Parallel()

	_, err := NewVerifier(VerifierConfig{})
	assert.Error(t, err)
}

func TestVerifier_AcceptsIssuedToken(t *testing.T) {
	t.Parallel()
	v := newHS256Verifier(t, "taskpulse", "web")

	token, err := IssueToken(testSecret, TokenRequest{
		UserID: 7, Username: "ada", Issuer: "taskpulse", Audience: "web", TTL: testTTL,
	})
	require.NoError(t, err)

	id, err := v.Verify(t.Context(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestVerifier_AcceptsNumericSubject(t *testing.T) {
	t.Parallel()
	v := newHS256Verifier(t, "", "")

	token := signHS256(t, jwt.MapClaims{
		"sub": 42,
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	id, err := v.Verify(t.Context(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()
	v := newHS256Verifier(t, "taskpulse", "web")
	future := time.Now().Add(time.Hour).Unix()

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7", "exp": future, "iss": "taskpulse", "aud": "web",
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":        "not-a-token",
		"wrong key":      wrongKey,
		"expired":        signHS256(t, jwt.MapClaims{"sub": "7", "exp": time.Now().Add(-time.Hour).Unix(), "iss": "taskpulse", "aud": "web"}),
		"no expiry":      signHS256(t, jwt.MapClaims{"sub": "7", "iss": "taskpulse", "aud": "web"}),
		"wrong audience": signHS256(t, jwt.MapClaims{"sub": "7", "exp": future, "iss": "taskpulse", "aud": "mobile"}),
		"wrong issuer":   signHS256(t, jwt.MapClaims{"sub": "7", "exp": future, "iss": "evil", "aud": "web"}),
		"missing sub":    signHS256(t, jwt.MapClaims{"exp": future, "iss": "taskpulse", "aud": "web"}),
		"non numeric":    signHS256(t, jwt.MapClaims{"sub": "auth0|abc", "exp": future, "iss": "taskpulse", "aud": "web"}),
		"zero sub":       signHS256(t, jwt.MapClaims{"sub": "0", "exp": future, "iss": "taskpulse", "aud": "web"}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := v.Verify(t.Context(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifier_RS256ViaJWKS(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwksJSON, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)

	jwks, err := keyfunc.NewJSON(jwksJSON)
	require.NoError(t, err)

	v, err := NewVerifier(VerifierConfig{JWKS: jwks, Audience: "web"})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "9",
		"aud": "web",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	id, err := v.Verify(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	// HS256 is not accepted by a JWKS-only verifier.
	_, err = v.Verify(t.Context(), signHS256(t, jwt.MapClaims{"sub": "9", "aud": "web", "exp": time.Now().Add(time.Hour).Unix()}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueToken_ValidatesRequest(t *testing.T) {
	t.Parallel()

	_, err := IssueToken("", TokenRequest{UserID: 1, TTL: testTTL})
	assert.Error(t, err)
	_, err = IssueToken(testSecret, TokenRequest{UserID: 0, TTL: testTTL})
	assert.Error(t, err)
	_, err = IssueToken(testSecret, TokenRequest{UserID: 1})
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	_, err := TokenFromRequest(r, false)
	assert.ErrorIs(t, err, ErrMissingToken)

	token, err := TokenFromRequest(r, true)
	require.NoError(t, err)
	assert.Equal(t, "from-query", token)

	r.Header.Set("Authorization", "bearer from-header")
	token, err = TokenFromRequest(r, true)
	require.NoError(t, err)
	assert.Equal(t, "from-header", token, "header wins over query")

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = TokenFromRequest(r, true)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	_, ok := UserIDFromContext(t.Context())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(t.Context(), 7))
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}
