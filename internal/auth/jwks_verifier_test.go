package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "key-1"

// oidcProvider serves a discovery document and a one-key JWK set.
type oidcProvider struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newOIDCProvider(t *testing.T) *oidcProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk, err := jwkset.NewJWKFromKey(key.Public(), jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{KID: testKID, ALG: jwkset.AlgRS256, USE: jwkset.UseSig},
	})
	require.NoError(t, err)
	keys := jwkset.NewMemoryStorage()
	require.NoError(t, keys.KeyWrite(context.Background(), jwk))
	set, err := keys.JSONPublic(context.Background())
	require.NoError(t, err)

	p := &oidcProvider{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   p.srv.URL,
			"jwks_uri": p.srv.URL + "/oauth/v2/keys",
		})
	})
	mux.HandleFunc("/oauth/v2/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(set)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *oidcProvider) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(p.key)
	require.NoError(t, err)
	return signed
}

func (p *oidcProvider) claims(overrides jwt.MapClaims) jwt.MapClaims {
	c := jwt.MapClaims{
		"iss":                p.srv.URL,
		"sub":                "zitadel-42",
		"aud":                []string{"anime-ai"},
		"exp":                time.Now().Add(time.Hour).Unix(),
		"email":              "mika@example.com",
		"preferred_username": "mika",
		zitadelRoleClaim:     map[string]any{"admin": map[string]string{"org": "example"}},
	}
	for k, v := range overrides {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return c
}

func newTestVerifier(t *testing.T, p *oidcProvider, clientID string) *JWKSVerifier {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	v, err := NewJWKSVerifier(ctx, &config.ZitadelConfig{Issuer: p.srv.URL + "/", ClientID: clientID})
	require.NoError(t, err)
	return v
}

func TestJWKSTokenResolvesThroughResolver(t *testing.T) {
	p := newOIDCProvider(t)
	r := NewResolver(newTestVerifier(t, p, "anime-ai"), "")

	principal, err := r.Resolve(p.sign(t, p.claims(nil)))
	require.NoError(t, err)
	assert.Equal(t, "zitadel-42", principal.UserID)
	assert.Equal(t, "mika", principal.Username)
	assert.Equal(t, "mika@example.com", principal.Email)
	assert.True(t, principal.HasRole(RoleAdmin))
}

func TestJWKSVerifierRejects(t *testing.T) {
	p := newOIDCProvider(t)
	v := newTestVerifier(t, p, "anime-ai")

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, p.claims(nil))
	forged.Header["kid"] = testKID
	forgedToken, err := forged.SignedString(other)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong audience": p.sign(t, p.claims(jwt.MapClaims{"aud": []string{"someone-else"}})),
		"wrong issuer":   p.sign(t, p.claims(jwt.MapClaims{"iss": "https://evil.example.com"})),
		"expired":        p.sign(t, p.claims(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})),
		"no expiry":      p.sign(t, p.claims(jwt.MapClaims{"exp": nil})),
		"no subject":     p.sign(t, p.claims(jwt.MapClaims{"sub": nil})),
		"foreign key":    forgedToken,
		"garbage":        "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.True(t, apperr.Is(err, apperr.KindAuthentication), "got %v", err)
		})
	}
}

func TestJWKSVerifierSkipsAudienceWithoutClientID(t *testing.T) {
	p := newOIDCProvider(t)
	v := newTestVerifier(t, p, "")

	principal, err := v.Verify(p.sign(t, p.claims(jwt.MapClaims{"aud": []string{"any"}})))
	require.NoError(t, err)
	assert.Equal(t, "zitadel-42", principal.UserID)
}

func TestDiscoverJWKSURLFailures(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	_, err := NewJWKSVerifier(context.Background(), &config.ZitadelConfig{Issuer: missing.URL})
	assert.ErrorContains(t, err, "status 404")

	noKeys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issuer":"x"}`))
	}))
	defer noKeys.Close()

	_, err = discoverJWKSURL(context.Background(), noKeys.URL)
	assert.ErrorContains(t, err, "jwks_uri not found")

	otherIssuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issuer":"https://elsewhere.example.com","jwks_uri":"https://elsewhere.example.com/keys"}`))
	}))
	defer otherIssuer.Close()

	_, err = discoverJWKSURL(context.Background(), otherIssuer.URL)
	assert.ErrorContains(t, err, "does not match")

	_, err = NewJWKSVerifier(context.Background(), &config.ZitadelConfig{})
	assert.Error(t, err)
}
