package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-escrow-pipeline/core"
)

// ErrorResponse is the uniform error body of every route.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Timestamp  string `json:"timestamp"`
	Message    string `json:"message"`
	Path       string `json:"path"`
}

func writeError(c *fiber.Ctx, err error) error {
	mapped := core.MapError(err)
	status := mapped.Code
	if status < 400 || status > 599 {
		status = core.PipelineHTTPStatus(mapped.Category)
	}
	message := mapped.Message
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		message = http.StatusText(status)
	}
	return c.Status(status).JSON(ErrorResponse{
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Message:    message,
		Path:       c.Path(),
	})
}

func unauthorized(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.PipelineErrorUnauthorized)
}

// errorHandler renders fiber's own errors such as unknown routes in the
// uniform envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			StatusCode: fiberErr.Code,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Message:    fiberErr.Message,
			Path:       c.Path(),
		})
	}
	return writeError(c, err)
}
