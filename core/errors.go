package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PipelineErrorBadInput           = "PIPELINE_BAD_INPUT"
	PipelineErrorUnauthorized       = "PIPELINE_UNAUTHORIZED"
	PipelineErrorNotFound           = "PIPELINE_NOT_FOUND"
	PipelineErrorMissingData        = "PIPELINE_MISSING_DATA"
	PipelineErrorDeliveryFailed     = "PIPELINE_DELIVERY_FAILED"
	PipelineErrorReceiverThrottled  = "PIPELINE_RECEIVER_THROTTLED"
	PipelineErrorChainCallFailed    = "PIPELINE_CHAIN_CALL_FAILED"
	PipelineErrorSweepRunning       = "PIPELINE_SWEEP_RUNNING"
	PipelineErrorInvariantViolation = "PIPELINE_INVARIANT_VIOLATION"
	PipelineErrorInternal           = "PIPELINE_INTERNAL_ERROR"
)

// MissingDataError marks a retryable gap in collaborator data such as an
// unregistered webhook URL.
func MissingDataError(message string, metadata map[string]any) error {
	return newPipelineError(message, goerrors.CategoryNotFound, PipelineErrorMissingData, metadata)
}

// InvariantError marks a state the pipeline must never retry out of.
func InvariantError(message string, metadata map[string]any) error {
	return newPipelineError(message, goerrors.CategoryInternal, PipelineErrorInvariantViolation, metadata)
}

func BadInputError(message string, metadata map[string]any) error {
	return newPipelineError(message, goerrors.CategoryBadInput, PipelineErrorBadInput, metadata)
}

func ExternalError(err error, textCode string, message string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		wrapped = wrapped.WithMetadata(metadata)
	}
	return wrapped
}

func IsInvariantViolation(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == PipelineErrorInvariantViolation
}

func newPipelineError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(PipelineHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// MapError converts any error into the rich envelope used at the HTTP edge.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePipelineErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrInvalidChainID),
		errors.Is(err, ErrInvalidEscrowAddress),
		errors.Is(err, ErrUnsupportedEventType),
		errors.Is(err, ErrInvalidSweepJobType):
		return ensurePipelineErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput))
	case errors.Is(err, ErrSweepAlreadyCompleted):
		return ensurePipelineErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryInternal).WithTextCode(PipelineErrorInvariantViolation),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePipelineErrorEnvelope(mapped)
}

func ensurePipelineErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = PipelineHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPipelineTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPipelineTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PipelineErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return PipelineErrorUnauthorized
	case goerrors.CategoryNotFound:
		return PipelineErrorNotFound
	case goerrors.CategoryConflict:
		return PipelineErrorSweepRunning
	case goerrors.CategoryRateLimit:
		return PipelineErrorReceiverThrottled
	case goerrors.CategoryExternal:
		return PipelineErrorDeliveryFailed
	default:
		return PipelineErrorInternal
	}
}

func PipelineHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
