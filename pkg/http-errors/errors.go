package httpErrors

import (
	"net/http"

	dErrors "taskdesk/pkg/domain-errors"
)

// ToHTTPStatus maps a domain error code to the HTTP status the transport
// layer should answer with. Unknown codes fall through to 500 so nothing
// internal leaks by accident.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation,
		dErrors.CodeSuspiciousInput, dErrors.CodeUploadRejected:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeConnectionDenied:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
