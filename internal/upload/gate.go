// Package upload implements the file-report gate: metadata validation applied
// before a file is written and again after, plus the disk storage layer with
// collision-free object naming. Rejected candidates never survive to servable
// storage.
package upload

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"taskdesk/internal/security/patterns"
)

// MaxSizeBytes is the default upload size ceiling (10 MiB).
const MaxSizeBytes int64 = 10 << 20

// RejectReason is the closed set of gate rejection causes.
type RejectReason string

const (
	RejectTooLarge           RejectReason = "too_large"
	RejectDangerousExtension RejectReason = "dangerous_extension"
	RejectDisallowedType     RejectReason = "disallowed_type"
	RejectInvalidFilename    RejectReason = "invalid_filename"
)

// RejectionError carries the reason and a user-safe message. The declared
// filename is never echoed back; it goes to the audit log only.
type RejectionError struct {
	Reason  RejectReason
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Candidate is the transient metadata of one upload request.
type Candidate struct {
	DeclaredName     string
	DeclaredMimeType string
	SizeBytes        int64
}

// allowedMimeTypes and allowedExtensions are independent checks: declared MIME
// types are untrustworthy, so a recognized extension is sufficient on its own
// and vice versa.
var allowedMimeTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"application/pdf": {},
	"text/plain":      {},
	"text/csv":        {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
}

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".pdf": {},
	".txt": {}, ".csv": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
}

// Declared filenames are restricted to a conservative character set; anything
// else is rejected outright, never auto-renamed.
var validFilename = regexp.MustCompile(`^[A-Za-z0-9._()\s-]+$`)

// Gate validates upload candidates against fixed lists and a size ceiling.
type Gate struct {
	maxBytes int64
}

func NewGate(maxBytes int64) *Gate {
	if maxBytes <= 0 {
		maxBytes = MaxSizeBytes
	}
	return &Gate{maxBytes: maxBytes}
}

// ValidateMetadata checks one candidate. The dangerous-extension deny-list is
// evaluated first and overrides any allow-list match. Returns nil on accept or
// a *RejectionError naming the first violated rule.
func (g *Gate) ValidateMetadata(c Candidate) error {
	name := strings.TrimSpace(c.DeclaredName)
	if name == "" || patterns.MatchesPathTraversal(name) || !validFilename.MatchString(name) {
		return &RejectionError{
			Reason:  RejectInvalidFilename,
			Message: "filename may only contain letters, digits, dots, spaces, parentheses, hyphens, and underscores",
		}
	}

	// Deny-list wins over allow-list. Only the true final extension counts.
	if patterns.HasDangerousExtension(name) {
		return &RejectionError{
			Reason:  RejectDangerousExtension,
			Message: "file type is not allowed for upload",
		}
	}

	if c.SizeBytes > g.maxBytes {
		return &RejectionError{
			Reason:  RejectTooLarge,
			Message: fmt.Sprintf("file exceeds the maximum size of %d bytes", g.maxBytes),
		}
	}

	mimeOK := false
	if mt := strings.ToLower(strings.TrimSpace(c.DeclaredMimeType)); mt != "" {
		_, mimeOK = allowedMimeTypes[mt]
	}
	ext := strings.ToLower(path.Ext(name))
	_, extOK := allowedExtensions[ext]

	if !mimeOK && !extOK {
		return &RejectionError{
			Reason:  RejectDisallowedType,
			Message: "file type is not supported",
		}
	}

	return nil
}

// SafeExtension returns the candidate's final extension when it is on the
// allow-list, or ".bin" otherwise. Storage appends it to a random object name.
func SafeExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if _, ok := allowedExtensions[ext]; ok {
		return ext
	}
	return ".bin"
}
