// Package apierr defines the failure taxonomy surfaced by the storefront client.
//
// Every error carries a single Message suitable for direct display to the end
// user. Kind tells callers how to react: a NetworkError invites a retry, an
// AuthError means the session was dropped, NotFound is a missing resource and
// ServiceError is any other backend rejection.
package apierr

import (
	"github.com/go-faster/errors"
)

// Kind classifies a failure.
type Kind int

const (
	KindService Kind = iota
	KindNetwork
	KindAuth
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_error"
	case KindAuth:
		return "auth_error"
	case KindNotFound:
		return "not_found"
	default:
		return "service_error"
	}
}

// Error is a classified failure with a display message.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Detail is the message the backend supplied, if any.
	Detail string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Network reports that no response was received.
func Network(cause error, msg string) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Err: cause}
}

// Auth reports a 401 from the backend.
func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Status: 401, Message: msg}
}

// NotFound reports a 404 on a singular resource lookup.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: 404, Message: msg}
}

// Service reports any other non-success response.
func Service(status int, msg string) *Error {
	return &Error{Kind: KindService, Status: status, Message: msg}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; unclassified errors are service errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindService
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return 0
}

// MessageOf returns the display message of err, falling back when empty.
func MessageOf(err error, fallback string) string {
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	return fallback
}

func IsNetwork(err error) bool  { return err != nil && KindOf(err) == KindNetwork }
func IsAuth(err error) bool     { return err != nil && KindOf(err) == KindAuth }
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }
func IsService(err error) bool  { return err != nil && KindOf(err) == KindService }
