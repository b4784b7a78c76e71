package shared

import (
	"errors"
	"net/http"

	"taskdesk/internal/transport/http/json"
	dErrors "taskdesk/pkg/domain-errors"
	httpErrors "taskdesk/pkg/http-errors"
)

// ErrorResponse is the wire shape of every non-2xx JSON body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and error responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		json.WriteJSON(w, httpErrors.ToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:   WireCode(domainErr.Code),
			Message: domainErr.Message,
		})
		return
	}

	// Fallback for unexpected errors
	json.WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: WireCode(dErrors.CodeInternal),
	})
}

// WireCode translates domain error codes to the stable strings clients match on.
func WireCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return "bad_request"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeRateLimited:
		return "rate_limit_exceeded"
	case dErrors.CodeSuspiciousInput:
		return "suspicious_input"
	case dErrors.CodeUploadRejected:
		return "upload_rejected"
	case dErrors.CodeConnectionDenied:
		return "connection_denied"
	case dErrors.CodeInternal:
		return "internal_error"
	default:
		return "internal_error"
	}
}
