package pdf

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/paper-extractor/internal/domain"
)

const pdfMimeType = "application/pdf"

// Validator provides input validation for PDF uploads and files
type Validator struct {
	maxBytes int64
}

// NewValidator creates a validator that rejects inputs above maxBytes.
// A non-positive limit disables the size check.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// ValidateUpload checks the declared content type, size and magic bytes of an upload.
func (v *Validator) ValidateUpload(contentType string, data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("upload is empty", nil)
	}

	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return domain.ValidationError(fmt.Sprintf("upload is %d bytes, limit is %d", len(data), v.maxBytes), nil)
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return domain.ValidationError(fmt.Sprintf("malformed content type %q", contentType), err)
		}
		if mediaType != pdfMimeType && mediaType != "application/octet-stream" {
			return domain.ValidationError(fmt.Sprintf("unsupported content type %s", mediaType), domain.ErrNotPDF)
		}
	}

	if sniffed := http.DetectContentType(data); sniffed != pdfMimeType || !bytes.HasPrefix(data, []byte("%PDF-")) {
		return domain.ValidationError(fmt.Sprintf("content is %s", sniffed), domain.ErrNotPDF)
	}

	return nil
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	if v.maxBytes > 0 && info.Size() > v.maxBytes {
		return domain.ValidationError(fmt.Sprintf("file is %d MB, limit is %d MB", info.Size()>>20, v.maxBytes>>20), nil)
	}

	return nil
}

// ReadPDF validates path and returns the file contents.
func (v *Validator) ReadPDF(path string) ([]byte, error) {
	if err := v.ValidatePDFPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot read file: %s", path), err)
	}
	if err := v.ValidateUpload(pdfMimeType, data); err != nil {
		return nil, err
	}
	return data, nil
}
