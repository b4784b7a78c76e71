package json

import (
	"encoding/json"
	"io"
	"net/http"

	dErrors "taskdesk/pkg/domain-errors"
)

// MaxBodyBytes caps how much of a request body handlers will read.
const MaxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Decode reads a JSON request body into dst, rejecting unknown fields and
// oversized payloads.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid json body")
	}
	return nil
}
