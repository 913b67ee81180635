package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned for navigation or save while a save is in flight
	ErrBusy = errors.New("a save is in progress")

	// ErrImageNotReady is returned when a gesture starts before the current image has loaded
	ErrImageNotReady = errors.New("current image is not ready")

	// ErrNoDataset is returned when the session has no dataset or no current image
	ErrNoDataset = errors.New("no dataset open")

	// ErrNoPrelabeler is returned by Suggest when no pre-annotator is configured
	ErrNoPrelabeler = errors.New("no pre-annotator configured")
)

// LoadError records a failed image fetch. It affects only that image.
type LoadError struct {
	Filename string
	Cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Filename, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ValidationError is a local rejection that never reaches the network
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// PersistenceError is returned when the storage backend rejects a save.
// Local state is left as it was before the save.
type PersistenceError struct {
	Filename string
	Cause    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save annotations for %s: %v", e.Filename, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
