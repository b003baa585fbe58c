package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can branch on it.
type Kind string

const (
	KindFileRead            Kind = "FILE_READ"
	KindPDFExtraction       Kind = "PDF_EXTRACTION_FAILED"
	KindDOCXExtraction      Kind = "DOCX_EXTRACTION_FAILED"
	KindUnsupportedFileType Kind = "UNSUPPORTED_FILE_TYPE"
	KindEmptyContent        Kind = "EMPTY_CONTENT"
	KindEmptyResponse       Kind = "EMPTY_RESPONSE"
	KindRateLimit           Kind = "RATE_LIMIT"
	KindAuthRequired        Kind = "AUTH_REQUIRED"
	KindAIRequest           Kind = "AI_REQUEST"
	KindInvalidResponse     Kind = "INVALID_RESPONSE"
)

// MsgFileTooLarge is the FILE_READ message used for uploads over the size ceiling.
const MsgFileTooLarge = "File size exceeds maximum limit"

// Kinds lists every kind the pipeline can surface.
var Kinds = []Kind{
	KindFileRead,
	KindPDFExtraction,
	KindDOCXExtraction,
	KindUnsupportedFileType,
	KindEmptyContent,
	KindEmptyResponse,
	KindRateLimit,
	KindAuthRequired,
	KindAIRequest,
	KindInvalidResponse,
}

// Error is a structured pipeline failure.
type Error struct {
	Kind      Kind
	Message   string
	Details   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Details)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a non-retryable error of the given kind.
func New(kind Kind, message, details string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap builds a non-retryable error of the given kind around cause.
// The cause message becomes the details when details is empty.
func Wrap(kind Kind, message string, cause error) *Error {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Details: details, Err: cause}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
