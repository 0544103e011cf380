package common

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

// Error kinds
const (
	ErrTransport         Kind = "transport_error"
	ErrRateLimited       Kind = "rate_limited"
	ErrAPI               Kind = "api_error"
	ErrMalformedResponse Kind = "malformed_response"
	ErrNoSeriesData      Kind = "no_series_data"
	ErrStore             Kind = "store_error"
	ErrRender            Kind = "render_error"
	ErrNotify            Kind = "notify_error"
	ErrConfig            Kind = "config_error"
)

// Error is the typed failure returned by every I/O-touching operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new typed error
func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Newf is New with a formatted message and no cause.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
