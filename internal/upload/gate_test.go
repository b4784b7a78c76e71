package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateValidateMetadata(t *testing.T) {
	gate := NewGate(MaxSizeBytes)

	tests := []struct {
		name      string
		candidate Candidate
		reason    RejectReason // "" means accept
	}{
		{
			"small jpeg accepted",
			Candidate{DeclaredName: "a.jpg", DeclaredMimeType: "image/jpeg", SizeBytes: 1024},
			"",
		},
		{
			"executable rejected regardless of mime",
			Candidate{DeclaredName: "a.exe", DeclaredMimeType: "image/jpeg", SizeBytes: 1024},
			RejectDangerousExtension,
		},
		{
			"oversized file rejected",
			Candidate{DeclaredName: "a.jpg", DeclaredMimeType: "image/jpeg", SizeBytes: 11_000_000},
			RejectTooLarge,
		},
		{
			"traversal in name rejected",
			Candidate{DeclaredName: "../../etc/passwd", DeclaredMimeType: "text/plain", SizeBytes: 10},
			RejectInvalidFilename,
		},
		{
			"final extension decides: php.jpg is a jpg",
			Candidate{DeclaredName: "payload.php.jpg", DeclaredMimeType: "image/jpeg", SizeBytes: 1024},
			"",
		},
		{
			"final extension decides: jpg.php is dangerous",
			Candidate{DeclaredName: "photo.jpg.php", DeclaredMimeType: "image/jpeg", SizeBytes: 1024},
			RejectDangerousExtension,
		},
		{
			"unknown extension with allowed mime accepted",
			Candidate{DeclaredName: "report.data", DeclaredMimeType: "application/pdf", SizeBytes: 1024},
			"",
		},
		{
			"allowed extension with unknown mime accepted",
			Candidate{DeclaredName: "report.pdf", DeclaredMimeType: "application/octet-stream", SizeBytes: 1024},
			"",
		},
		{
			"unknown extension and unknown mime rejected",
			Candidate{DeclaredName: "report.data", DeclaredMimeType: "application/octet-stream", SizeBytes: 1024},
			RejectDisallowedType,
		},
		{
			"illegal characters rejected not renamed",
			Candidate{DeclaredName: "semi;colon.jpg", DeclaredMimeType: "image/jpeg", SizeBytes: 10},
			RejectInvalidFilename,
		},
		{
			"empty name rejected",
			Candidate{DeclaredName: "", DeclaredMimeType: "image/jpeg", SizeBytes: 10},
			RejectInvalidFilename,
		},
		{
			"spaces and parens allowed",
			Candidate{DeclaredName: "Q3 report (final).pdf", DeclaredMimeType: "application/pdf", SizeBytes: 10},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.ValidateMetadata(tt.candidate)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var re *RejectionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.reason, re.Reason)
		})
	}
}

func TestSafeExtension(t *testing.T) {
	assert.Equal(t, ".jpg", SafeExtension("photo.JPG"))
	assert.Equal(t, ".pdf", SafeExtension("report.pdf"))
	assert.Equal(t, ".bin", SafeExtension("archive.zip"))
	assert.Equal(t, ".bin", SafeExtension("README"))
}
