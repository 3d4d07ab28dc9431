package storage

import "errors"

// ErrNilEntry is returned when Put receives a nil entry.
var ErrNilEntry = errors.New("cannot store nil entry")

// NotFoundError is returned when an entry doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "entry not found"
	}

	return "entry not found: " + e.ID
}
