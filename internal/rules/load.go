package rules

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE []byte

//go:embed dnd5e.cue
var defaultCUE []byte

// LoadError reports a ruleset that could not be compiled or validated.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

var defaultRuleset = sync.OnceValues(func() (*Ruleset, error) {
	return Load(defaultCUE, "dnd5e.cue")
})

// Default returns the embedded ruleset. The returned value is shared and
// must not be modified.
func Default() *Ruleset {
	rs, err := defaultRuleset()
	if err != nil {
		panic(fmt.Sprintf("rules: embedded ruleset is invalid: %v", err))
	}
	return rs
}

// LoadFile reads a CUE ruleset from disk.
func LoadFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	return Load(data, filepath.Base(path))
}

// Load compiles src, unifies it with the #Ruleset schema, and decodes it.
// The schema is closed, so unknown fields are rejected.
func Load(src []byte, filename string) (*Ruleset, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err, "schema.cue")
	}
	def := schema.LookupPath(cue.ParsePath("#Ruleset"))

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err, filename)
	}

	v := def.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, filename)
	}

	var rs Ruleset
	if err := v.Decode(&rs); err != nil {
		return nil, formatCUEError(err, filename)
	}
	if err := rs.index(); err != nil {
		return nil, &LoadError{File: filename, Message: err.Error()}
	}
	return &rs, nil
}

// formatCUEError converts CUE's error list into a single LoadError that keeps
// the first position.
func formatCUEError(err error, filename string) error {
	le := &LoadError{File: filename, Message: cueerrors.Details(err, nil)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = errs[0].Error()
		if len(errs) > 1 {
			le.Message = fmt.Sprintf("%s (and %d more errors)", le.Message, len(errs)-1)
		}
	}
	return le
}
