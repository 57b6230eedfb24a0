package handler

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/loopyluu007/anime-ai/internal/middleware"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/loopyluu007/anime-ai/internal/service"
	"github.com/loopyluu007/anime-ai/pkg/response"
)

type TaskHandler struct {
	service   *service.TaskService
	validator *validator.Validate
}

func NewTaskHandler(svc *service.TaskService, v *validator.Validate) *TaskHandler {
	return &TaskHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	var req model.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return h.create(c, service.CreateInput{
		Type:           req.Type,
		ConversationID: req.ConversationID,
		Params:         req.Params,
	})
}

// CreateScreenplay handles POST /api/screenplays
func (h *TaskHandler) CreateScreenplay(c *fiber.Ctx) error {
	return h.createTyped(c, model.TaskTypeScript, &model.ScriptParams{})
}

// CreateImage handles POST /api/images
func (h *TaskHandler) CreateImage(c *fiber.Ctx) error {
	return h.createTyped(c, model.TaskTypeImage, &model.ImageParams{})
}

// CreateVideo handles POST /api/videos
func (h *TaskHandler) CreateVideo(c *fiber.Ctx) error {
	return h.createTyped(c, model.TaskTypeVideo, &model.VideoParams{})
}

// createTyped validates a typed body up front and submits it as params.
func (h *TaskHandler) createTyped(c *fiber.Ctx, taskType model.TaskType, params interface{}) error {
	if err := c.BodyParser(params); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(params); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	return h.create(c, service.CreateInput{
		Type:           string(taskType),
		ConversationID: c.Query("conversationId"),
		Params:         raw,
	})
}

func (h *TaskHandler) create(c *fiber.Ctx, in service.CreateInput) error {
	task, err := h.service.Create(c.UserContext(), middleware.GetUserID(c), in)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, &model.TaskCreatedResponse{
		ID:        task.ID,
		Type:      task.Type,
		Status:    task.Status,
		Progress:  task.Progress,
		CreatedAt: task.CreatedAt,
	})
}

// List handles GET /api/tasks
func (h *TaskHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.UserContext(), middleware.GetUserID(c), c.QueryInt("page", 1), c.QueryInt("pageSize", 20))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Get handles GET /api/tasks/:taskId
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	task, err := h.service.Get(c.UserContext(), middleware.GetUserID(c), c.Params("taskId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, task)
}

// Progress handles GET /api/tasks/:taskId/progress
func (h *TaskHandler) Progress(c *fiber.Ctx) error {
	result, err := h.service.Progress(c.UserContext(), middleware.GetUserID(c), c.Params("taskId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/tasks/:taskId/cancel
func (h *TaskHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.Cancel(c.UserContext(), middleware.GetUserID(c), c.Params("taskId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}
