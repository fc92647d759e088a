package dispatch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies dispatch failures.
type ErrorKind int

// Error kinds. BadCredential is deliberately absent: invalid credentials
// degrade the request to unauthenticated and never fail it.
const (
	KindNotFound ErrorKind = iota + 1
	KindMethodNotAllowed
	KindForbidden
	KindUpgradeRequired
	KindJSONMessage
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindForbidden:
		return "forbidden"
	case KindUpgradeRequired:
		return "upgrade_required"
	case KindJSONMessage:
		return "json_message"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a failed dispatch outcome that maps to an HTTP error response.
// Handlers may return it to produce a specific error response; any other error
// returned by a handler becomes an internal fault.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	// Code is an optional machine readable error code.
	Code    int
	Message string
	// Data is the response body of a KindJSONMessage error.
	Data any
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode returns a copy of the error with the machine readable code set.
func (e *Error) WithCode(code int) *Error {
	c := *e
	c.Code = code
	return &c
}

// NotFound returns an error for a missing route or a handler without a result.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: msg}
}

// MethodNotAllowed returns an error for a method the route doesn't support.
func MethodNotAllowed(msg string) *Error {
	return &Error{Kind: KindMethodNotAllowed, StatusCode: http.StatusMethodNotAllowed, Message: msg}
}

// Forbidden returns an error for a restricted route accessed without a
// trusted identity.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, StatusCode: http.StatusForbidden, Message: msg}
}

// UpgradeRequired returns an error for clients whose version is no longer
// supported.
func UpgradeRequired(msg string) *Error {
	return &Error{Kind: KindUpgradeRequired, StatusCode: http.StatusUpgradeRequired, Message: msg}
}

// JSONMessage returns an error whose response body is data encoded as JSON.
func JSONMessage(data any) *Error {
	return &Error{
		Kind: KindJSONMessage, StatusCode: http.StatusBadRequest,
		Message: "invalid request", Data: data,
	}
}

// Internal returns an error for an unexpected fault.
func Internal(err error) *Error {
	return &Error{
		Kind: KindInternal, StatusCode: http.StatusInternalServerError,
		Message: err.Error(), Err: err,
	}
}

// AsError converts err into an *Error. Errors that aren't already an *Error
// become internal faults.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) && derr != nil {
		if derr.StatusCode == 0 {
			derr.StatusCode = http.StatusInternalServerError
		}
		return derr
	}
	return Internal(err)
}
