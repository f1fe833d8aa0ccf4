package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTermNotFound       = errors.New("term not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrOutOfOrder         = errors.New("postings out of order")
	ErrUnsupportedMetric  = errors.New("unsupported metric")
	ErrUnknownField       = errors.New("unknown field")
	ErrFieldConfiguration = errors.New("invalid field configuration")
	ErrPoolClosed         = errors.New("posting pool is closed")
	ErrCorruptSegment     = errors.New("corrupt segment")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
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

// OutOfOrder reports a sorted-input contract breach between prev and next.
func OutOfOrder(prev, next any) error {
	return fmt.Errorf("%w: %v .. %v", ErrOutOfOrder, prev, next)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrTermNotFound), errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrUnsupportedMetric):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
