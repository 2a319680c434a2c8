package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Only HMAC algorithms are accepted; "none" and asymmetric algorithms are
// rejected before the signature is checked.
var allowedAlgorithms = []string{"HS256", "HS384", "HS512"}

// Claims are the token claims mapped onto a Principal
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig configures JWTVerifier
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTVerifier validates "Bearer <token>" credentials signed with a shared secret
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier; an empty secret is a configuration error
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt verifier: empty secret")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTVerifier{
		secret: cfg.Secret,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify checks signature, expiry, issuer and audience and maps the claims
func (v *JWTVerifier) Verify(_ context.Context, credential string) (*Principal, error) {
	scheme, token, ok := strings.Cut(credential, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, &AuthError{Reason: "expected a Bearer token"}
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &AuthError{Reason: "token expired", Err: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, &AuthError{Reason: "invalid token signature", Err: err}
		default:
			return nil, &AuthError{Reason: "invalid token", Err: err}
		}
	}
	if !parsed.Valid {
		return nil, &AuthError{Reason: "invalid token"}
	}

	if claims.Subject == "" {
		return nil, &AuthError{Reason: "token has no sub claim"}
	}

	return &Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// SignToken issues an HS256 token for p; used by tests and local tooling
func SignToken(secret []byte, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
