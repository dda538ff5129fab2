package roster

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("character not found")

	// ErrFlush marks a mutation that succeeded in memory but could not be
	// written to disk.
	ErrFlush = errors.New("flush failed")

	// ErrIDExhausted is returned when the generator keeps producing ids the
	// roster has already issued.
	ErrIDExhausted = errors.New("could not generate an unused id")
)

// NotFoundError reports an id absent from the roster.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("character %q not found", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound returns true if err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FlushError wraps the cause of a failed flush.
type FlushError struct {
	Err error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush failed, changes kept in memory: %v", e.Err)
}

func (e *FlushError) Unwrap() []error {
	return []error{ErrFlush, e.Err}
}
