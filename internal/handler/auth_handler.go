package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/loopyluu007/anime-ai/internal/auth"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	resolver *auth.Resolver
}

func NewAuthHandler(resolver *auth.Resolver) *AuthHandler {
	return &AuthHandler{resolver: resolver}
}

// Verify handles GET /auth/verify, called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get("Authorization"))
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	principal, err := h.resolver.Resolve(token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", principal.UserID)
	c.Set("X-User-Email", principal.Email)
	c.Set("X-User-Name", principal.Username)
	if len(principal.Roles) > 0 {
		c.Set("X-User-Roles", strings.Join(principal.Roles, ","))
	}
	return c.SendStatus(fiber.StatusOK)
}
