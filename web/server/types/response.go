package types

import (
	"errors"
	"net/http"

	"go.hackfix.me/switchboard/dispatch"
)

// Response is the outcome of an HTTP request, before serialization.
type Response struct {
	StatusCode int
	Header     http.Header
	// Data is the successful response payload.
	Data any
	// Err is set if the request failed.
	Err *dispatch.Error
	// MaxAge is the Cache-Control max-age, in seconds. It's only sent with
	// successful responses.
	MaxAge int
}

// NewResponse returns a response built from a dispatch result.
func NewResponse(resp *dispatch.Response, err error) *Response {
	if err != nil {
		return NewErrorResponse(dispatch.AsError(err))
	}
	if resp == nil {
		return NewErrorResponse(dispatch.Internal(errors.New("dispatch returned no response")))
	}

	header := resp.Header
	if header == nil {
		header = http.Header{}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Data:       resp.Data,
		MaxAge:     resp.MaxAge,
	}
}

// NewErrorResponse returns a failed response.
func NewErrorResponse(err *dispatch.Error) *Response {
	return &Response{StatusCode: err.StatusCode, Header: http.Header{}, Err: err}
}

// SetError marks the response as failed.
func (r *Response) SetError(err *dispatch.Error) {
	r.Err = err
	r.StatusCode = err.StatusCode
	r.Data = nil
}

// OK returns true if the response is successful.
func (r *Response) OK() bool {
	return r.Err == nil && r.StatusCode < http.StatusBadRequest
}
