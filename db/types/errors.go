package types

import (
	"errors"
	"fmt"

	"github.com/glebarez/go-sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DuplicateError is returned when a row with the same unique key exists.
type DuplicateError struct {
	ModelName string
	ID        string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s already exists", e.ModelName, e.ID)
}

// InvalidInputError is returned when a model fails validation, either before
// it's written or by a schema constraint.
type InvalidInputError struct {
	Msg string
}

func (e InvalidInputError) Error() string {
	return e.Msg
}

// LoadError wraps failures of queries that read models.
type LoadError struct {
	ModelName string
	Msg       string
	Err       error
}

func (e LoadError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("failed loading %s: %s", e.ModelName, msg)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// NoResultError is returned when the model identified by ID doesn't exist.
type NoResultError struct {
	ModelName string
	ID        string
}

func (e NoResultError) Error() string {
	return fmt.Sprintf("%s with %s doesn't exist", e.ModelName, e.ID)
}

// ScanError wraps failures of reading row values into models.
type ScanError struct {
	ModelName string
	Err       error
}

func (e ScanError) Error() string {
	return fmt.Sprintf("failed scanning %s data: %s", e.ModelName, e.Err)
}

func (e ScanError) Unwrap() error {
	return e.Err
}

// Err maps constraint violations reported by SQLite to the error types of this
// package. Other errors are returned unchanged.
func Err(modelName, id string, err error) error {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}

	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return DuplicateError{ModelName: modelName, ID: id}
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return InvalidInputError{Msg: fmt.Sprintf("invalid %s with %s: %s", modelName, id, sqlErr.Error())}
	}

	return err
}
