package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bearer-token claims the bridge understands. Subject names
// the calling application; it becomes the session principal in logs.
type Claims struct {
	Subject string `json:"sub,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates client bearer tokens. With no secret configured
// validation is skipped and the raw token stands in as the principal, which
// keeps local development keyless.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator. An empty secret disables
// signature validation.
func NewAuthenticator(secret string) *Authenticator {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Authenticator{secret: key}
}

// GenerateToken mints a token for the given principal, used by tests and
// provisioning tooling.
func (a *Authenticator) GenerateToken(principal string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("no signing secret configured")
	}
	claims := &Claims{
		Subject: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Principal resolves the Authorization header value to a principal name.
// The header must carry a bearer token; a configured secret makes it a
// signed JWT, otherwise it is treated as opaque.
func (a *Authenticator) Principal(authorization string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return "", fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	if raw == "" {
		return "", fmt.Errorf("missing bearer token")
	}

	if len(a.secret) == 0 {
		return "anonymous", nil
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return "anonymous", nil
	}
	return claims.Subject, nil
}
