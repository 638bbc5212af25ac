// CLAUDE:SUMMARY Store errors: ErrNotFound sentinel and PersistenceError wrapping backend failures.
package docs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced document or page does not exist.
var ErrNotFound = errors.New("docs: not found")

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// PersistenceError is returned when the backend could not load or save a
// collection. The in-memory state is left as it was before the operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("docs: persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
