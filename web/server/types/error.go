package types

import (
	"encoding/xml"
	"net/http"

	"go.hackfix.me/switchboard/dispatch"
)

// Error is the body of an error response.
type Error struct {
	XMLName xml.Name `json:"-" xml:"Error"`
	Code    int      `json:"code" xml:"Code"`
	Message string   `json:"message" xml:"Message"`
}

// ErrorEnvelope wraps Error in JSON responses.
type ErrorEnvelope struct {
	Error Error `json:"error"`
}

// NewError creates a new transport error with the specified status code and
// message. Transport errors happen before the request reaches the dispatcher.
func NewError(statusCode int, message string) *dispatch.Error {
	return &dispatch.Error{
		Kind:       dispatch.KindInternal,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorBody returns the response body of err. The code is the error's
// machine readable code if it has one, and the HTTP status code otherwise.
// Messages of internal faults are hidden from clients.
func NewErrorBody(err *dispatch.Error) Error {
	code := err.Code
	if code == 0 {
		code = err.StatusCode
	}

	msg := err.Message
	if err.StatusCode == http.StatusInternalServerError {
		msg = http.StatusText(http.StatusInternalServerError)
	}

	return Error{Code: code, Message: msg}
}
