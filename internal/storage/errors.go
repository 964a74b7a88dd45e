package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced message or user does not exist.
var ErrNotFound = errors.New("record not found")

// PersistenceError reports a failed storage operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
