package channel

import (
	"context"
	"errors"
	"fmt"
)

const (
	ErrorConnection       = "connection_error"
	ErrorPeerDisconnected = "peer_disconnected"
	ErrorRead             = "read_error"
)

// ErrPeerDisconnected matches every error in the peer_disconnected category.
var ErrPeerDisconnected = errors.New("peer disconnected")

// Error is a categorized session I/O failure.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e != nil && target == ErrPeerDisconnected && e.Category == ErrorPeerDisconnected
}

// NewError creates a categorized error wrapping cause.
func NewError(category string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{Category: category, Detail: detail, Err: cause}
}

// CategoryFromError returns the stable category for an error.
// Context cancellation counts as a disconnect: the session is going away.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	if errors.Is(err, ErrPeerDisconnected) || errors.Is(err, context.Canceled) {
		return ErrorPeerDisconnected
	}

	return ErrorRead
}

// IsPeerDisconnected reports whether err ends a session silently.
func IsPeerDisconnected(err error) bool {
	return CategoryFromError(err) == ErrorPeerDisconnected
}
