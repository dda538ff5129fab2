package persist

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollforge/internal/rules"
	"github.com/roach88/rollforge/internal/testutil"
)

func openSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), path, rules.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_PragmasAndVersion(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "characters.db"))

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestSQLite_OpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.db")
	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(context.Background(), path, rules.Default())
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestSQLite_EmptyDatabase(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "characters.db"))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Equal(t, int64(1), snap.NextSeq)
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "characters.db")
	want := populated(t).Snapshot()

	s := openSQLite(t, path)
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Close())

	s = openSQLite(t, path)
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLite_SaveReplacesContents(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "characters.db"))
	full := populated(t).Snapshot()
	require.NoError(t, s.Save(ctx, full))

	smaller := full.Clone()
	smaller.Records = smaller.Records[1:]
	require.NoError(t, s.Save(ctx, smaller))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, smaller.Records, got.Records)
}

func TestSQLite_OrdersBySeqThenID(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "characters.db"))
	snap := populated(t).Snapshot()
	snap.Records[0], snap.Records[1] = snap.Records[1], snap.Records[0]
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Less(t, got.Records[0].Seq, got.Records[1].Seq)
}

func TestSQLite_QuarantinesBadPayload(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "characters.db"))
	require.NoError(t, s.Save(ctx, populated(t).Snapshot()))

	_, err := s.db.Exec(`INSERT INTO characters (id, seq, name, class, level, payload)
		VALUES ('broken', 99, 'x', 'Fighter', 1, '{"id":"broken","name":"x"')`)
	require.NoError(t, err)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 2)
	require.Len(t, snap.Quarantined, 1)
	assert.Equal(t, "broken", snap.Quarantined[0].ID)
	assert.NotContains(t, snap.Retired, "broken")

	require.NoError(t, s.Save(ctx, snap))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Quarantined, again.Quarantined)
}

func TestSQLite_MigratesVersion2(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "characters.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	require.NoError(t, migrateToV2(ctx, db))
	_, err = db.Exec(`INSERT INTO quarantined (position, reason, entry) VALUES (0, 'old', '"x"')`)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 2")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s := openSQLite(t, path)
	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Quarantined, 1)
	assert.Equal(t, "old", snap.Quarantined[0].Reason)
	assert.Empty(t, snap.Quarantined[0].ID)
}

func TestSQLite_QuarantinedEntryReadmittedUnderOtherRules(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "characters.db")
	want := populated(t).Snapshot()
	s := openSQLite(t, path)
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Close())

	strict, err := OpenSQLite(ctx, path, withoutRogue(t))
	require.NoError(t, err)
	snap, err := strict.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Quarantined, 1)
	assert.Equal(t, want.Records[0].ID, snap.Quarantined[0].ID)
	require.NoError(t, strict.Save(ctx, snap))
	require.NoError(t, strict.Close())

	back, err := OpenSQLite(ctx, path, rules.Default())
	require.NoError(t, err)
	defer back.Close()
	got, err := back.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Quarantined)
	assert.Equal(t, want.Records, got.Records)
}

func TestSQLite_NewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 9")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenSQLite(context.Background(), path, rules.Default())
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
}

func TestSQLite_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a database ", 300)), 0o644))

	_, err := OpenSQLite(context.Background(), path, rules.Default())
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))

	moved, err := QuarantineDatabase(path, testutil.Epoch)
	require.NoError(t, err)
	assert.FileExists(t, moved)

	s := openSQLite(t, path)
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Equal(t, int64(1), snap.NextSeq)
}
