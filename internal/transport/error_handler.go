package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shiftguard/notify-engine/internal/domain"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// ErrorHandler maps domain errors to HTTP statuses and stable error codes.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code := classify(err)

		logger.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.String("code", code),
			zap.Error(err),
		)

		return c.Status(status).JSON(errorResponse{
			Success: false,
			Error: errorBody{
				Code:    code,
				Message: publicMessage(code, err),
			},
		})
	}
}

// publicMessage keeps store and internal error detail out of responses; the
// full error is in the log line above.
func publicMessage(code string, err error) string {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Message
	}

	switch code {
	case "STORE_ERROR":
		return "storage operation failed"
	case "INTERNAL":
		return "internal error"
	default:
		return err.Error()
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrMaxRetries):
		return fiber.StatusConflict, "MAX_RETRIES_EXCEEDED"
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrStore):
		return fiber.StatusInternalServerError, "STORE_ERROR"
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, codeForStatus(fiberErr.Code)
	}

	return fiber.StatusInternalServerError, "INTERNAL"
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "VALIDATION"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}
