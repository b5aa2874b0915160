package store

import (
	"errors"

	"github.com/papercomputeco/graphstack/pkg/graph"
)

// ErrNoModel is returned by LoadModel when no model has been saved yet.
var ErrNoModel = errors.New("store has no model")

// NotFoundError is returned when an object doesn't exist in the store.
type NotFoundError struct {
	Identity graph.Identity
}

func (e NotFoundError) Error() string {
	if e.Identity.IsZero() {
		return "object not found"
	}

	return "object not found: " + e.Identity.String()
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// WriteError reports a failed batch write. Nothing from the batch was made
// durable, so the write is safe to retry.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return "store write failed: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
