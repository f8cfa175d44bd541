package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// VerifierConfig selects the accepted key material. At least one of Secret
// (HS256) or JWKS (RS256) must be set.
type VerifierConfig struct {
	Secret   string
	JWKS     *keyfunc.JWKS
	Issuer   string
	Audience string
}

// Verifier turns a bearer token into the id of the user it was issued to.
type Verifier struct {
	secret   []byte
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	methods  []string
	now      func() time.Time
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		jwks:     cfg.JWKS,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
	if cfg.Secret != "" {
		v.secret = []byte(cfg.Secret)
		v.methods = append(v.methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.JWKS != nil {
		v.methods = append(v.methods, jwt.SigningMethodRS256.Alg())
	}
	if len(v.methods) == 0 {
		return nil, errors.New("verifier needs a secret or a JWKS")
	}
	return v, nil
}

// Verify checks signature, expiry, audience and issuer, and returns the
// numeric user id carried in the sub claim.
func (v *Verifier) Verify(_ context.Context, raw string) (int64, error) {
	if strings.Count(raw, ".") != 2 {
		return 0, fmt.Errorf("%w: malformed token", ErrInvalidToken)
	}

	parser := jwt.NewParser(jwt.WithValidMethods(v.methods))
	token, err := parser.Parse(raw, v.key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	now := v.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return 0, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return 0, fmt.Errorf("%w: invalid audience", ErrInvalidToken)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return 0, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}

	return subject(claims)
}

func (v *Verifier) key(t *jwt.Token) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.secret == nil {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, errors.New("RSA tokens are not accepted")
		}
		return v.jwks.Keyfunc(t)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

// subject accepts both the string and the numeric encodings of sub.
func subject(claims jwt.MapClaims) (int64, error) {
	var id int64
	switch sub := claims["sub"].(type) {
	case string:
		parsed, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: sub is not a user id", ErrInvalidToken)
		}
		id = parsed
	case float64:
		if sub != math.Trunc(sub) {
			return 0, fmt.Errorf("%w: sub is not a user id", ErrInvalidToken)
		}
		id = int64(sub)
	default:
		return 0, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: sub is not a user id", ErrInvalidToken)
	}
	return id, nil
}
