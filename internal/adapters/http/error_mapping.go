package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/observability/logging"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrStatusConflict), domain.IsKind(err, domain.ErrAlreadyProcessing):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrOCRFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrOCRTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and hides internal detail behind 5xx responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("http_handler_failed", "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}
