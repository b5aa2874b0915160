package editing

import "errors"

var (
	// ErrSaveInProgress is returned when a save is requested on a context
	// that is already saving. Retry once the running save has finished.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrForeignObject is returned when an object owned by another context,
	// or no longer tracked by this one, is passed to a context operation.
	ErrForeignObject = errors.New("object does not belong to this context")

	// ErrForeignTemporaryIdentity is returned when a temporary identity minted
	// by another context crosses into this one.
	ErrForeignTemporaryIdentity = errors.New("temporary identity belongs to another context")

	// ErrDuplicate is returned when inserting an object the context already
	// tracks.
	ErrDuplicate = errors.New("object is already tracked by this context")

	// ErrDeleteDenied is returned when a deny delete rule blocks a delete.
	ErrDeleteDenied = errors.New("delete denied by relationship rule")

	// ErrReleased is returned by every operation on a released context.
	ErrReleased = errors.New("context has been released")
)
