// Package server assembles the HTTP surface: middleware, routes and the
// websocket endpoint.
package server

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/loopyluu007/anime-ai/internal/admission"
	"github.com/loopyluu007/anime-ai/internal/auth"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/loopyluu007/anime-ai/internal/handler"
	"github.com/loopyluu007/anime-ai/internal/middleware"
	"github.com/loopyluu007/anime-ai/internal/service"
	ws "github.com/loopyluu007/anime-ai/internal/websocket"
	"github.com/loopyluu007/anime-ai/pkg/response"
)

// Deps are the constructed components the routes need
type Deps struct {
	Config    *config.Config
	Log       zerolog.Logger
	Tasks     *service.TaskService
	Hub       *ws.Hub
	Resolver  *auth.Resolver
	Limiter   *admission.Limiter
	Validator *validator.Validate
	// Services reports which optional backends are configured, for /health
	Services map[string]bool
}

// New builds the fiber app.
func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(d.Log.With().Str("component", "http").Logger()))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"name": "anime-ai-api", "timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"services":    d.Services,
			"connections": d.Hub.ConnectionCount(),
		})
	})

	authHandler := handler.NewAuthHandler(d.Resolver)
	app.Get("/auth/verify", authHandler.Verify)

	var authenticate fiber.Handler
	if cfg.Gateway.Enabled {
		authenticate = middleware.GatewayAuthMiddleware()
	} else {
		authenticate = middleware.NewAuthMiddleware(d.Resolver).Authenticate()
	}

	taskHandler := handler.NewTaskHandler(d.Tasks, d.Validator)
	noticeHandler := handler.NewNoticeHandler(d.Hub, d.Validator)
	gate := middleware.NewRateLimiter(d.Limiter).Limit(cfg.RateLimit.Requests, cfg.RateLimit.Window())

	api := app.Group("/api", authenticate)

	api.Post("/tasks", gate, taskHandler.Create)
	api.Post("/screenplays", gate, taskHandler.CreateScreenplay)
	api.Post("/images", gate, taskHandler.CreateImage)
	api.Post("/videos", gate, taskHandler.CreateVideo)

	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.List)
	tasks.Get("/:taskId", taskHandler.Get)
	tasks.Get("/:taskId/progress", taskHandler.Progress)
	tasks.Post("/:taskId/cancel", taskHandler.Cancel)

	api.Post("/system/notices", middleware.RequireRole(auth.RoleAdmin), noticeHandler.Publish)

	wsHandler := ws.NewHandler(d.Hub, d.Resolver, d.Tasks.Authorize,
		time.Duration(cfg.WebSocket.PingIntervalSeconds)*time.Second, d.Log)
	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws", wsHandler.Serve())

	return app
}

// ErrorHandler renders errors that escaped a handler in the common envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return response.Error(c, e.Code, codeForStatus(e.Code), e.Message, nil)
	}
	return response.FromError(c, err)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity, fiber.StatusRequestEntityTooLarge:
		return response.CodeValidationError
	case fiber.StatusUnauthorized:
		return response.CodeUnauthorized
	case fiber.StatusForbidden:
		return response.CodeForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return response.CodeNotFound
	case fiber.StatusTooManyRequests:
		return response.CodeRateLimited
	case fiber.StatusServiceUnavailable:
		return response.CodeServiceUnavailable
	}
	if status >= fiber.StatusInternalServerError {
		return response.CodeInternalError
	}
	return response.CodeValidationError
}
