package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/loopyluu007/anime-ai/internal/admission"
	"github.com/loopyluu007/anime-ai/pkg/response"
)

// RateLimiter gates routes with the admission controller
type RateLimiter struct {
	limiter *admission.Limiter
	now     func() time.Time
}

func NewRateLimiter(limiter *admission.Limiter) *RateLimiter {
	return &RateLimiter{limiter: limiter, now: time.Now}
}

// Limit admits at most maxRequests per window for each client key.
func (rl *RateLimiter) Limit(maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, remaining := rl.limiter.Allow(ClientKey(c), maxRequests, window)

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(window).Unix(), 10))

		if !allowed {
			return response.RateLimited(c, "Rate limit exceeded: "+
				strconv.Itoa(maxRequests)+" requests per "+
				strconv.Itoa(int(window/time.Second))+" seconds")
		}
		return c.Next()
	}
}

// ClientKey identifies the caller: the authenticated user when known,
// otherwise the client address as reported by the proxy chain.
func ClientKey(c *fiber.Ctx) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return "ip:" + ip
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}
	if ip := c.IP(); ip != "" {
		return "ip:" + ip
	}
	return "unknown"
}
