package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
)

// JSONFile stores the roster as one JSON document.
//
// Thread-safety: JSONFile is safe for concurrent use via internal mutex.
type JSONFile struct {
	path   string
	rules  *rules.Ruleset
	logger *zap.Logger
	now    func() time.Time

	// rename is os.Rename outside tests.
	rename func(oldpath, newpath string) error

	mu         sync.Mutex
	unresolved error
}

// NewJSONFile returns a backend for the document at path. Nothing is read
// until Load.
func NewJSONFile(path string, rs *rules.Ruleset, opts ...Option) *JSONFile {
	o := defaultOptions(opts)
	return &JSONFile{
		path:   path,
		rules:  rs,
		logger: o.logger,
		now:    o.now,
		rename: os.Rename,
	}
}

// Path returns the document path.
func (j *JSONFile) Path() string {
	return j.path
}

// Load reads the document. A missing file is an empty roster.
func (j *JSONFile) Load(ctx context.Context) (*roster.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		j.unresolved = nil
		j.logger.Info("no character file yet, starting empty", zap.String("path", j.path))
		return &roster.Snapshot{NextSeq: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", j.path, err)
	}

	stamp := j.now()
	if info, err := os.Stat(j.path); err == nil {
		stamp = info.ModTime()
	}

	p, err := parseDocument(data, j.rules.DefaultClass, stamp)
	if err != nil {
		err = withPath(err, j.path)
		j.unresolved = err
		j.logger.Error("character file unreadable", zap.String("path", j.path), zap.Error(err))
		return nil, err
	}
	j.unresolved = nil
	if p.version != SchemaVersion {
		j.logger.Info("migrating character file",
			zap.String("path", j.path),
			zap.Int("from", p.version),
			zap.Int("to", SchemaVersion),
		)
	}

	snap := assemble(j.rules, j.logger, j.path, p.nextSeq, p.retired, p.quarantined, p.entries)
	j.logger.Info("characters loaded",
		zap.String("path", j.path),
		zap.Int("count", len(snap.Records)),
		zap.Int("quarantined", len(snap.Quarantined)),
	)
	return snap, nil
}

// Save atomically replaces the document with snap.
func (j *JSONFile) Save(ctx context.Context, snap *roster.Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if j.unresolved != nil {
		return fmt.Errorf("%w: %v", ErrCorruptUnresolved, j.unresolved)
	}

	data, err := encodeDocument(snap)
	if err != nil {
		return err
	}
	if err := writeAtomic(j.path, data, j.rename); err != nil {
		return err
	}
	j.logger.Debug("characters saved", zap.String("path", j.path), zap.Int("count", len(snap.Records)))
	return nil
}

// Quarantine moves an unreadable document aside so that saving can resume.
// It returns the new name of the file, or "" if there was nothing to move.
func (j *JSONFile) Quarantine() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	dest, err := MoveAside(j.path, j.now())
	if err != nil {
		return "", err
	}
	j.unresolved = nil
	if dest != "" {
		j.logger.Warn("moved unreadable character file aside", zap.String("path", j.path), zap.String("moved_to", dest))
	}
	return dest, nil
}

// Close is a no-op; the file is not held open.
func (j *JSONFile) Close() error {
	return nil
}

func withPath(err error, path string) error {
	var ce *CorruptDataError
	if errors.As(err, &ce) {
		ce.Path = path
	}
	var se *SchemaError
	if errors.As(err, &se) {
		se.Path = path
	}
	return err
}
