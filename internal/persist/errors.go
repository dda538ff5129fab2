package persist

import (
	"errors"
	"fmt"
)

// ErrCorruptUnresolved is returned by Save after Load failed, until the
// unreadable file has been moved aside with Quarantine.
var ErrCorruptUnresolved = errors.New("stored data could not be loaded; refusing to overwrite it")

// CorruptDataError reports a stored file that cannot be parsed at all.
type CorruptDataError struct {
	Path string
	Err  error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt data in %s: %v", e.Path, e.Err)
}

func (e *CorruptDataError) Unwrap() error {
	return e.Err
}

// SchemaError reports stored data in a format or version this build cannot
// read. Nothing is migrated or overwritten.
type SchemaError struct {
	Path      string
	Format    string
	Version   int
	Supported int
	Message   string
}

func (e *SchemaError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("%s: schema version %d is not supported (this build reads up to %d)", e.Path, e.Version, e.Supported)
}

// IsCorrupt returns true if err is or wraps a CorruptDataError.
func IsCorrupt(err error) bool {
	var ce *CorruptDataError
	return errors.As(err, &ce)
}

// IsSchemaError returns true if err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
