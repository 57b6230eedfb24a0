package response

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/loopyluu007/anime-ai/internal/apperr"
)

// Error codes
const (
	CodeValidationError    = string(apperr.KindValidation)
	CodeUnauthorized       = string(apperr.KindAuthentication)
	CodeForbidden          = string(apperr.KindAuthorization)
	CodeNotFound           = string(apperr.KindNotFound)
	CodeConflict           = string(apperr.KindConflict)
	CodeRateLimited        = string(apperr.KindRateLimit)
	CodeProviderError      = string(apperr.KindProvider)
	CodeServiceUnavailable = string(apperr.KindServiceUnavailable)
	CodeTimeout            = string(apperr.KindTimeout)
	CodeInternalError      = string(apperr.KindInternal)
)

// RequestIDKey is the fiber local the requestid middleware writes to.
const RequestIDKey = "requestid"

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	ErrorID string      `json:"errorId,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			ErrorID: requestID(c),
			Details: details,
		},
	})
}

// FromError writes the envelope for err. Unclassified errors are reported as
// a bare internal error so nothing about the cause leaks to the caller.
func FromError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		return Error(c, kind.Status(), CodeInternalError, "Internal Server Error", nil)
	}

	var details interface{}
	var e *apperr.Error
	if errors.As(err, &e) {
		details = e.Details
	}
	return Error(c, kind.Status(), string(kind), err.Error(), details)
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
