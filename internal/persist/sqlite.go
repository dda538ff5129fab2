package persist

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - characters, retired_ids, meta
// 2 - quarantined table and class index
// 3 - quarantined.id, held back from new records
const currentSchemaVersion = 3

// SQLite stores the roster in a SQLite database with WAL mode.
// Records are stored as the same wire JSON the document backend uses.
type SQLite struct {
	db     *sql.DB
	path   string
	rules  *rules.Ruleset
	logger *zap.Logger
}

// OpenSQLite creates or opens the database at path and applies migrations.
// A file that is not a database yields a CorruptDataError; a database written
// by a newer build yields a SchemaError.
func OpenSQLite(ctx context.Context, path string, rs *rules.Ruleset, opts ...Option) (*SQLite, error) {
	o := defaultOptions(opts)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &CorruptDataError{Path: path, Err: err}
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, &CorruptDataError{Path: path, Err: err}
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, withPath(err, path)
	}

	return &SQLite{db: db, path: path, rules: rs, logger: o.logger}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path.
func (s *SQLite) Path() string {
	return s.path
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return &CorruptDataError{Err: fmt.Errorf("get user_version: %w", err)}
	}
	if version > currentSchemaVersion {
		return &SchemaError{Format: "sqlite", Version: version, Supported: currentSchemaVersion}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if version < 2 {
		if err := migrateToV2(ctx, db); err != nil {
			return err
		}
	}
	if version < 3 {
		if err := migrateToV3(ctx, db); err != nil {
			return err
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV2 adds quarantine storage and the class index.
func migrateToV2(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quarantined (
			position INTEGER PRIMARY KEY,
			reason   TEXT NOT NULL,
			entry    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_characters_class ON characters(class);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// migrateToV3 records the id of each quarantined entry.
func migrateToV3(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `ALTER TABLE quarantined ADD COLUMN id TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("migrate to v3: %w", err)
	}
	return nil
}

// Load reads every table. Rows are ordered by seq then id.
func (s *SQLite) Load(ctx context.Context) (*roster.Snapshot, error) {
	nextSeq, err := s.readNextSeq(ctx)
	if err != nil {
		return nil, err
	}
	retired, err := s.readRetired(ctx)
	if err != nil {
		return nil, err
	}
	quarantined, err := s.readQuarantined(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload FROM characters
		ORDER BY seq ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()

	var entries []entry
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		e := decodeWireEntry(json.RawMessage(payload))
		e.id = id
		if e.err == nil && e.wire.ID != id {
			e.err = fmt.Errorf("payload id %q does not match row id %q", e.wire.ID, id)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate characters: %w", err)
	}

	snap := assemble(s.rules, s.logger, s.path, nextSeq, retired, quarantined, entries)
	s.logger.Info("characters loaded",
		zap.String("path", s.path),
		zap.Int("count", len(snap.Records)),
		zap.Int("quarantined", len(snap.Quarantined)),
	)
	return snap, nil
}

func (s *SQLite) readNextSeq(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_seq'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read next_seq: %w", err)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &CorruptDataError{Path: s.path, Err: fmt.Errorf("next_seq %q: %w", value, err)}
	}
	return n, nil
}

func (s *SQLite) readRetired(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM retired_ids ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query retired ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan retired id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) readQuarantined(ctx context.Context) ([]roster.Quarantined, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, reason, entry FROM quarantined ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query quarantined: %w", err)
	}
	defer rows.Close()

	var out []roster.Quarantined
	for rows.Next() {
		var q roster.Quarantined
		var entry string
		if err := rows.Scan(&q.ID, &q.Reason, &entry); err != nil {
			return nil, fmt.Errorf("scan quarantined: %w", err)
		}
		q.Entry = json.RawMessage(entry)
		out = append(out, q)
	}
	return out, rows.Err()
}

// Save replaces the database contents with snap in one transaction.
func (s *SQLite) Save(ctx context.Context, snap *roster.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"characters", "retired_ids", "quarantined"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, rec := range snap.Records {
		payload, err := marshalJSON(character.ToWire(rec))
		if err != nil {
			return fmt.Errorf("encode character %s: %w", rec.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO characters (id, seq, name, class, level, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.Seq, rec.Name, rec.Class, rec.Level, string(payload))
		if err != nil {
			return fmt.Errorf("insert character %s: %w", rec.ID, err)
		}
	}
	for _, id := range snap.Retired {
		if _, err := tx.ExecContext(ctx, `INSERT INTO retired_ids (id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("insert retired id %s: %w", id, err)
		}
	}
	for i, q := range snap.Quarantined {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quarantined (position, id, reason, entry) VALUES (?, ?, ?, ?)
		`, i, q.ID, q.Reason, string(q.Entry))
		if err != nil {
			return fmt.Errorf("insert quarantined entry %d: %w", i, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('next_seq', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.FormatInt(snap.NextSeq, 10))
	if err != nil {
		return fmt.Errorf("write next_seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("characters saved", zap.String("path", s.path), zap.Int("count", len(snap.Records)))
	return nil
}

// QuarantineDatabase moves an unreadable database and its WAL side files
// aside. The database must not be open.
func QuarantineDatabase(path string, now time.Time) (string, error) {
	dest, err := MoveAside(path, now)
	if err != nil || dest == "" {
		return dest, err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		side := path + suffix
		if _, err := os.Stat(side); err == nil {
			if err := os.Rename(side, dest+suffix); err != nil {
				return dest, fmt.Errorf("move aside %s: %w", side, err)
			}
		}
	}
	return dest, nil
}
