package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-extractor/internal/domain"
)

func TestValidateUpload(t *testing.T) {
	pdfBytes := makePDF(t, 1)

	tests := []struct {
		name        string
		contentType string
		data        []byte
		maxBytes    int64
		wantErr     bool
	}{
		{"valid pdf", "application/pdf", pdfBytes, 0, false},
		{"no declared type", "", pdfBytes, 0, false},
		{"octet stream", "application/octet-stream", pdfBytes, 0, false},
		{"type with params", "application/pdf; name=paper.pdf", pdfBytes, 0, false},
		{"empty", "application/pdf", nil, 0, true},
		{"too large", "application/pdf", pdfBytes, 10, true},
		{"wrong declared type", "image/png", pdfBytes, 0, true},
		{"malformed type", "application/", pdfBytes, 0, true},
		{"text content", "application/pdf", []byte("hello world"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator(tt.maxBytes).ValidateUpload(tt.contentType, tt.data)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
		})
	}
}

func TestValidatePDFPath(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(good, makePDF(t, 1), 0o600))

	wrongExt := filepath.Join(dir, "paper.txt")
	require.NoError(t, os.WriteFile(wrongExt, []byte("x"), 0o600))

	v := NewValidator(0)
	assert.NoError(t, v.ValidatePDFPath(good))
	assert.Error(t, v.ValidatePDFPath(""))
	assert.Error(t, v.ValidatePDFPath(filepath.Join(dir, "missing.pdf")))
	assert.Error(t, v.ValidatePDFPath(dir))
	assert.Error(t, v.ValidatePDFPath(wrongExt))

	data, err := v.ReadPDF(good)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestReadPDF_RejectsDisguisedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o600))

	_, err := NewValidator(0).ReadPDF(path)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}
