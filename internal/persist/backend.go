package persist

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
)

// Backend loads and saves roster snapshots.
type Backend interface {
	Load(ctx context.Context) (*roster.Snapshot, error)
	Save(ctx context.Context, snap *roster.Snapshot) error
	Close() error
}

// Kind names a backend in configuration.
type Kind string

const (
	KindJSON   Kind = "json"
	KindSQLite Kind = "sqlite"
)

// Option configures a backend.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

func defaultOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNow replaces the wall clock used for migration timestamps and
// quarantine file names.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open returns the backend of the given kind storing at path.
func Open(ctx context.Context, kind Kind, path string, rs *rules.Ruleset, opts ...Option) (Backend, error) {
	switch kind {
	case KindJSON, "":
		return NewJSONFile(path, rs, opts...), nil
	case KindSQLite:
		return OpenSQLite(ctx, path, rs, opts...)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// MoveAside renames an unreadable file to "<path>.corrupt-<UTC timestamp>"
// and returns the new name. A missing file is not an error and yields "".
func MoveAside(path string, now time.Time) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	dest := fmt.Sprintf("%s.corrupt-%s", path, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("move aside %s: %w", path, err)
	}
	return dest, nil
}
