package cli

import (
	"errors"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/persist"
	"github.com/roach88/rollforge/internal/portable"
	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
)

// Error codes reported in CLI output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Invalid configuration or rules file
	ErrCodeIO          = "E003" // Reading or writing a user-supplied file
	ErrCodeUsage       = "E004" // Bad flag value
	ErrCodeValidation  = "E010" // Character failed validation
	ErrCodeNotFound    = "E011" // No character with that id
	ErrCodeFormat      = "E012" // Import file rejected
	ErrCodeCorrupt     = "E020" // Data file unreadable
	ErrCodeSchema      = "E021" // Data file written by an unsupported version
	ErrCodeSaveFailed  = "E022" // Changes kept in memory but not written
	ErrCodeSaveRefused = "E023" // Save refused until the unreadable file is moved aside
)

// classify maps a core error to its code and exit code.
func classify(err error) (code string, exit int) {
	var loadErr *rules.LoadError
	var formatErr *portable.FormatError
	switch {
	case errors.As(err, &formatErr):
		return ErrCodeFormat, ExitFailure
	case rules.IsValidationError(err):
		return ErrCodeValidation, ExitFailure
	case roster.IsNotFound(err):
		return ErrCodeNotFound, ExitCommandError
	case errors.Is(err, roster.ErrFlush):
		return ErrCodeSaveFailed, ExitCommandError
	case errors.Is(err, persist.ErrCorruptUnresolved):
		return ErrCodeSaveRefused, ExitCommandError
	case persist.IsSchemaError(err):
		return ErrCodeSchema, ExitCommandError
	case persist.IsCorrupt(err):
		return ErrCodeCorrupt, ExitCommandError
	case errors.As(err, &loadErr):
		return ErrCodeConfig, ExitCommandError
	}
	return ErrCodeGeneric, ExitFailure
}

// details returns structured context for err, if it has any.
func details(err error) any {
	var ve *character.ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	var se *persist.SchemaError
	if errors.As(err, &se) {
		return map[string]any{"path": se.Path, "version": se.Version, "supported": se.Supported}
	}
	var ce *persist.CorruptDataError
	if errors.As(err, &ce) {
		return map[string]string{"path": ce.Path}
	}
	return nil
}

// fail reports err through f and returns the ExitError the command should
// return.
func fail(f *OutputFormatter, err error) error {
	code, exit := classify(err)
	return failWith(f, code, exit, err)
}

func failWith(f *OutputFormatter, code string, exit int, err error) error {
	if outErr := f.Error(code, err.Error(), details(err)); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, code, err)
}
