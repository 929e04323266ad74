package api

import (
	"errors"
	"net/http"

	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/merge"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

// Error codes carried in APIError.Code.
const (
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeValidation     = "VALIDATION_ERROR"
	ErrorCodeConflict       = "CONFLICT"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
	ErrorCodeUpstream       = "UPSTREAM_ERROR"
	ErrorCodeNotImplemented = "NOT_IMPLEMENTED"
	ErrorCodeInternal       = "INTERNAL_SERVER_ERROR"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// RespondWithError aborts the request with a standard error body.
func RespondWithError(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message, Details: details})
}

// respondWithErr maps domain errors to HTTP statuses.
func respondWithErr(c *gin.Context, err error) {
	var tue *merge.TemplateUnavailableError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		RespondWithError(c, http.StatusNotFound, ErrorCodeNotFound, err.Error(), nil)
	case errors.Is(err, jobs.ErrInvalidPageToken), errors.Is(err, orchestrator.ErrInvalidRequest):
		RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
	case errors.Is(err, jobs.ErrAlreadyExists),
		errors.Is(err, orchestrator.ErrJobFinished),
		errors.Is(err, orchestrator.ErrJobRunning),
		errors.Is(err, orchestrator.ErrJobNotPending):
		RespondWithError(c, http.StatusConflict, ErrorCodeConflict, err.Error(), nil)
	case merge.IsAuthExpired(err):
		RespondWithError(c, http.StatusUnauthorized, ErrorCodeUnauthorized, err.Error(), nil)
	case errors.As(err, &tue) && tue.Reason == merge.TemplateNotFound:
		RespondWithError(c, http.StatusNotFound, ErrorCodeNotFound, err.Error(), gin.H{"templateId": tue.TemplateID})
	case errors.As(err, &tue), merge.IsTransient(err), merge.IsInsufficientData(err):
		RespondWithError(c, http.StatusBadGateway, ErrorCodeUpstream, err.Error(), nil)
	default:
		RespondWithError(c, http.StatusInternalServerError, ErrorCodeInternal, err.Error(), nil)
	}
}
