package errors

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
)

// RuntimeError is an error that happened while executing a CLI command. It
// carries an optional hint that is shown to the user after the error message.
type RuntimeError struct {
	msg  string
	err  error
	hint string
}

// NewRuntimeError returns a new RuntimeError.
func NewRuntimeError(msg string, err error, hint string) *RuntimeError {
	return &RuntimeError{msg: msg, err: err, hint: hint}
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err)
}

// Unwrap returns the wrapped error.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

// Hint returns the hint for resolving the error, if any.
func (e *RuntimeError) Hint() string {
	return e.hint
}

// Errorf writes a user-facing representation of err to stderr. It's meant to
// be called from main before exiting.
func Errorf(err error) {
	writeErr(os.Stderr, err)
}

func writeErr(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", err)

	var rerr *RuntimeError
	if errors.As(err, &rerr) && rerr.hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", rerr.hint)
	}
}

// Log logs an error using the given logger, extracting metadata if it's a
// StructuredError. If logger is nil, the default slog logger is used.
func Log(logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	var serr *StructuredError
	if !errors.As(err, &serr) {
		logger.Error(err.Error())
		return
	}

	logger.Error(serr.Error(), serr.attrs()...)
}

// attrs returns the metadata of the error as slog key-value pairs, sorted by
// key, with the cause first.
func (e *StructuredError) attrs() []any {
	args := make([]any, 0, len(e.metadata)*2+2)

	cause := e.metadata["cause"]
	if e.cause != nil {
		cause = e.cause.Error()
	}
	if cause != nil {
		args = append(args, "cause", cause)
	}

	keys := make([]string, 0, len(e.metadata))
	for k := range e.metadata {
		if k != "cause" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, k, e.metadata[k])
	}

	return args
}
