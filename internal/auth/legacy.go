package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	legacyIssuer     = "anime-ai-api"
	defaultLegacyTTL = 24 * time.Hour
)

// LegacyClaims represents legacy JWT claims (HMAC-signed tokens)
type LegacyClaims struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *LegacyClaims) Principal() *Principal {
	return &Principal{
		UserID:   c.UserID,
		Username: c.Username,
		Email:    c.Email,
		Roles:    c.Roles,
	}
}

// ValidateLegacyToken validates an HS256 token. Tokens without an expiry are
// rejected.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

// GenerateLegacyToken signs an HS256 token for p. ttl <= 0 falls back to
// defaultLegacyTTL.
func GenerateLegacyToken(p Principal, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultLegacyTTL
	}
	now := time.Now()
	claims := LegacyClaims{
		UserID:   p.UserID,
		Username: p.Username,
		Email:    p.Email,
		Roles:    p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    legacyIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
