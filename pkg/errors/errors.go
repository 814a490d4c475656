// Package errors defines the sentinel errors shared by every textindex
// component and maps them onto HTTP status codes for the search service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnknownField       = errors.New("unknown field")
	ErrDuplicateField     = errors.New("duplicate field")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrMalformedJSON      = errors.New("malformed json")
	ErrMalformedFacetPath = errors.New("malformed facet path")
	ErrIO                 = errors.New("io error")

	ErrInvalidArgument  = errors.New("invalid argument")
	ErrQuerySyntax      = errors.New("query syntax error")
	ErrFieldNotIndexed  = errors.New("field is not indexed")
	ErrIndexExists      = errors.New("index already exists")
	ErrIndexNotFound    = errors.New("index not found")
	ErrWriterLocked     = errors.New("index writer already open")
	ErrWriterClosed     = errors.New("index writer closed")
	ErrReaderClosed     = errors.New("index reader closed")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IO wraps err as an ErrIO with the given context message.
func IO(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrIO, err)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexExists), errors.Is(err, ErrWriterLocked):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrQuerySyntax),
		errors.Is(err, ErrFieldNotIndexed),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrSchemaMismatch),
		errors.Is(err, ErrTypeMismatch),
		errors.Is(err, ErrMalformedJSON),
		errors.Is(err, ErrMalformedFacetPath):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrReaderClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
