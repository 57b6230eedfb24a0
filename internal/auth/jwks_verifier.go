package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/config"
)

const (
	discoveryTimeout = 30 * time.Second
	zitadelRoleClaim = "urn:zitadel:iam:org:project:roles"
)

// TokenVerifier checks an identity-provider token and returns who it names.
// Errors are apperr authentication errors.
type TokenVerifier interface {
	Verify(token string) (*Principal, error)
}

// oidcClaims are the access-token claims issued by Zitadel. Roles arrive
// either as a flat list or as Zitadel's project role map.
type oidcClaims struct {
	Email             string                     `json:"email,omitempty"`
	Name              string                     `json:"name,omitempty"`
	PreferredUsername string                     `json:"preferred_username,omitempty"`
	Roles             []string                   `json:"roles,omitempty"`
	ProjectRoles      map[string]json.RawMessage `json:"urn:zitadel:iam:org:project:roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *oidcClaims) principal() *Principal {
	username := c.PreferredUsername
	if username == "" {
		username = c.Name
	}

	roles := append([]string(nil), c.Roles...)
	projectRoles := make([]string, 0, len(c.ProjectRoles))
	for role := range c.ProjectRoles {
		if !contains(roles, role) {
			projectRoles = append(projectRoles, role)
		}
	}
	sort.Strings(projectRoles)

	return &Principal{
		UserID:   c.Subject,
		Username: username,
		Email:    c.Email,
		Roles:    append(roles, projectRoles...),
	}
}

// JWKSVerifier validates RS/ES-signed tokens against the issuer's published
// key set. Keys are refreshed in the background until the context passed to
// NewJWKSVerifier ends.
type JWKSVerifier struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewJWKSVerifier discovers the issuer's jwks_uri and loads its keys. The
// audience is checked only when a client id is configured.
func NewJWKSVerifier(ctx context.Context, cfg *config.ZitadelConfig) (*JWKSVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("zitadel issuer is required")
	}
	issuer := strings.TrimSuffix(cfg.Issuer, "/")

	discoverCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	jwksURL, err := discoverJWKSURL(discoverCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, jwt.WithAudience(cfg.ClientID))
	}

	return &JWKSVerifier{keys: keys, parser: jwt.NewParser(opts...)}, nil
}

// discoverJWKSURL reads the OIDC discovery document and returns its jwks_uri.
func discoverJWKSURL(ctx context.Context, issuer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("jwks_uri not found in discovery document")
	}
	if doc.Issuer != "" && strings.TrimSuffix(doc.Issuer, "/") != issuer {
		return "", fmt.Errorf("discovery document issuer %q does not match %q", doc.Issuer, issuer)
	}

	return doc.JWKSURI, nil
}

// Verify parses token and maps its claims onto a Principal.
func (v *JWKSVerifier) Verify(token string) (*Principal, error) {
	claims := &oidcClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keys.Keyfunc); err != nil {
		return nil, apperr.Wrap(apperr.KindAuthentication, err, "Invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, apperr.Authentication("Token has no subject")
	}
	return claims.principal(), nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
