package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("rule not found")

// NotFoundError reports a lookup of an unknown rule id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError reports a failed load or save. The in-memory state is
// left as it was before the failing operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
