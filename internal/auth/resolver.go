package auth

import (
	"strings"

	"github.com/loopyluu007/anime-ai/internal/apperr"
)

// RoleAdmin may publish system notices.
const RoleAdmin = "admin"

// Principal is the authenticated identity behind a request or connection.
type Principal struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

func (p *Principal) HasRole(role string) bool {
	return contains(p.Roles, role)
}

// Resolver turns a bearer credential into a Principal. JWKS verification is
// tried first; the HMAC secret is the fallback for legacy tokens.
type Resolver struct {
	verifier  TokenVerifier
	jwtSecret string
}

func NewResolver(verifier TokenVerifier, jwtSecret string) *Resolver {
	return &Resolver{verifier: verifier, jwtSecret: jwtSecret}
}

// Resolve returns an authentication error for a missing or invalid token.
func (r *Resolver) Resolve(token string) (*Principal, error) {
	if token == "" {
		return nil, apperr.Authentication("Missing credentials")
	}

	if r.verifier != nil {
		p, err := r.verifier.Verify(token)
		if err == nil {
			return p, nil
		}
		if r.jwtSecret == "" {
			return nil, err
		}
	}

	if r.jwtSecret != "" {
		claims, err := ValidateLegacyToken(token, r.jwtSecret)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAuthentication, err, "Invalid or expired token")
		}
		return claims.Principal(), nil
	}

	return nil, apperr.Authentication("Authentication not configured")
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
