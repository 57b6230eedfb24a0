package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/loopyluu007/anime-ai/pkg/response"
)

// Broadcaster sends an event to every connection
type Broadcaster interface {
	Broadcast(ev *model.Event) int
}

// NoticeHandler publishes operator notices to connected clients
type NoticeHandler struct {
	hub       Broadcaster
	validator *validator.Validate
}

func NewNoticeHandler(hub Broadcaster, v *validator.Validate) *NoticeHandler {
	return &NoticeHandler{hub: hub, validator: v}
}

// Publish handles POST /api/system/notices
func (h *NoticeHandler) Publish(c *fiber.Ctx) error {
	var req model.NoticeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if req.Level == "" {
		req.Level = "info"
	}

	delivered := h.hub.Broadcast(&model.Event{Type: model.WSMessageTypeSystemNotice, Data: req})
	return response.OK(c, fiber.Map{"delivered": delivered})
}
