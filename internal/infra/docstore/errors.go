package docstore

import (
	"errors"
	"fmt"
)

// Canonical vendor error codes.
const (
	CodeCancelled          = "cancelled"
	CodeUnknown            = "unknown"
	CodeInvalidArgument    = "invalid-argument"
	CodeDeadlineExceeded   = "deadline-exceeded"
	CodeNotFound           = "not-found"
	CodeAlreadyExists      = "already-exists"
	CodePermissionDenied   = "permission-denied"
	CodeResourceExhausted  = "resource-exhausted"
	CodeFailedPrecondition = "failed-precondition"
	CodeAborted            = "aborted"
	CodeOutOfRange         = "out-of-range"
	CodeUnimplemented      = "unimplemented"
	CodeInternal           = "internal"
	CodeUnavailable        = "unavailable"
	CodeDataLoss           = "data-loss"
	CodeUnauthenticated    = "unauthenticated"
)

var (
	// ErrOffline is returned by operations issued while the network is disabled.
	ErrOffline = errors.New("client is offline")
	// ErrTerminated is returned by operations on a terminated client.
	ErrTerminated = errors.New("client has been terminated")
)

// Error is a vendor error carrying a canonical code.
type Error struct {
	code    string
	Message string
	Cause   error
}

// NewError creates a vendor error.
func NewError(code, message string) *Error {
	return &Error{code: code, Message: message}
}

// WrapError creates a vendor error around cause.
func WrapError(code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{code: code, Message: msg, Cause: cause}
}

// Code returns the canonical code.
func (e *Error) Code() string { return e.code }

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("docstore: %s", e.code)
	}
	return fmt.Sprintf("docstore: %s: %s", e.code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf returns the vendor code of err, or "" if err carries none.
func CodeOf(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
