package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeDecode              ErrorType = "decode"
	ErrorTypeRender              ErrorType = "render"
	ErrorTypeExtractionParse     ErrorType = "extraction_parse"
	ErrorTypePageProcessing      ErrorType = "page_processing"
	ErrorTypeChemistryExtraction ErrorType = "chemistry_extraction"
	ErrorTypeAPI                 ErrorType = "api"
	ErrorTypeConfig              ErrorType = "config"
	ErrorTypeIO                  ErrorType = "io"
	ErrorTypeState               ErrorType = "state"
)

// Sentinel errors wrapped by the pipeline so callers can match with errors.Is.
var (
	ErrNoDocument     = errors.New("no document loaded")
	ErrPageNotFound   = errors.New("page not found")
	ErrFigureNotFound = errors.New("figure not found")
	ErrPageBusy       = errors.New("page is already processing")
	ErrPageNotDone    = errors.New("page has no extracted content")
	ErrInvalidBox     = errors.New("invalid bounding box")
	ErrNotPDF         = errors.New("input is not a PDF")
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether any error in err's chain is a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

// TypeOf returns the type of the outermost DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func DecodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeDecode, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func ExtractionParseError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtractionParse, message, err)
}

func PageProcessingError(message string, err error) *DomainError {
	return NewError(ErrorTypePageProcessing, message, err)
}

func ChemistryExtractionError(message string, err error) *DomainError {
	return NewError(ErrorTypeChemistryExtraction, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func StateError(message string, err error) *DomainError {
	return NewError(ErrorTypeState, message, err)
}
