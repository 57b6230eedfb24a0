package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loopyluu007/anime-ai/internal/auth"
	"github.com/loopyluu007/anime-ai/pkg/response"
)

const principalKey = "principal"

// AuthMiddleware authenticates bearer tokens through the principal resolver
type AuthMiddleware struct {
	resolver *auth.Resolver
}

func NewAuthMiddleware(resolver *auth.Resolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Authenticate validates the token from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		token, ok := auth.BearerToken(authHeader)
		if !ok {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		principal, err := m.resolver.Resolve(token)
		if err != nil {
			return response.FromError(c, err)
		}

		setPrincipal(c, principal)
		return c.Next()
	}
}

func setPrincipal(c *fiber.Ctx, p *auth.Principal) {
	c.Locals("userId", p.UserID)
	c.Locals("email", p.Email)
	c.Locals("name", p.Username)
	c.Locals(principalKey, p)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(c *fiber.Ctx) *auth.Principal {
	if p, ok := c.Locals(principalKey).(*auth.Principal); ok {
		return p
	}
	return nil
}

// RequireRole rejects principals without role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		if p == nil {
			return response.Unauthorized(c, "Authentication required")
		}
		if !p.HasRole(role) {
			return response.Forbidden(c, "Insufficient permissions")
		}
		return c.Next()
	}
}
