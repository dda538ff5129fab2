package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
	"github.com/roach88/rollforge/internal/testutil"
)

// populated returns a roster with two live characters and one deleted.
func populated(t *testing.T) *roster.Roster {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewClock()
	r := roster.New(rules.Default(),
		roster.WithIDGenerator(testutil.NewSequentialIDs("")),
		roster.WithNow(clock.Now),
	)
	a, err := r.Create(ctx, testutil.Fighter("Anwen"))
	require.NoError(t, err)
	d := testutil.Draft("Vex <the> \"Quiet\"", "Rogue")
	d.Proficiencies = []string{"Stealth", "Perception"}
	d.Inventory = []character.Item{{Name: "Lockpicks", Quantity: 1}, {Name: "Dagger", Quantity: 2}}
	d.Notes = "multi\nline"
	d.Portrait = "/tmp/vex.png"
	_, err = r.Create(ctx, d)
	require.NoError(t, err)
	_, err = r.Create(ctx, testutil.Fighter("Cai"))
	require.NoError(t, err)
	_, err = r.Delete(ctx, a.ID)
	require.NoError(t, err)
	return r
}

func newJSON(t *testing.T) *JSONFile {
	t.Helper()
	return NewJSONFile(filepath.Join(t.TempDir(), "characters.json"), rules.Default(),
		WithNow(testutil.NewClock().Now))
}

func TestJSONFile_MissingFileIsEmpty(t *testing.T) {
	j := newJSON(t)

	snap, err := j.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Equal(t, int64(1), snap.NextSeq)
}

func TestJSONFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	want := populated(t).Snapshot()

	require.NoError(t, j.Save(ctx, want))
	got, err := j.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestJSONFile_RoundTripEmpty(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	want := roster.New(rules.Default()).Snapshot()

	require.NoError(t, j.Save(ctx, want))
	got, err := j.Load(ctx)
	require.NoError(t, err)

	assert.Empty(t, got.Records)
	assert.Empty(t, got.Retired)
	assert.Equal(t, want.NextSeq, got.NextSeq)
}

func TestJSONFile_DocumentLayout(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	require.NoError(t, j.Save(ctx, populated(t).Snapshot()))

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, DocumentFormat, doc["format"])
	assert.EqualValues(t, SchemaVersion, doc["schema_version"])
	assert.EqualValues(t, 4, doc["next_seq"])
	assert.Equal(t, []any{"char-0001"}, doc["retired_ids"])
	assert.Len(t, doc["characters"], 2)
	assert.Contains(t, string(data), `"Vex <the> \"Quiet\""`)
}

func TestJSONFile_InterruptedSaveKeepsPreviousFile(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	first := populated(t).Snapshot()
	require.NoError(t, j.Save(ctx, first))
	before, err := os.ReadFile(j.Path())
	require.NoError(t, err)

	j.rename = func(string, string) error { return errors.New("power cut") }
	second := first.Clone()
	second.Records = second.Records[:1]
	err = j.Save(ctx, second)
	require.Error(t, err)

	after, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(j.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be removed")

	j.rename = os.Rename
	got, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestJSONFile_StaleTempFileIgnored(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	want := populated(t).Snapshot()
	require.NoError(t, j.Save(ctx, want))

	stale := filepath.Join(filepath.Dir(j.Path()), ".characters.json.tmp-123")
	require.NoError(t, os.WriteFile(stale, []byte(`{"format":"rollfo`), 0o644))

	got, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJSONFile_CorruptFile(t *testing.T) {
	ctx := context.Background()

	for name, content := range map[string]string{
		"truncated":  `{"format":"rollforge.roster","schema_version":2,"charac`,
		"empty":      "",
		"whitespace": "  \n",
		"not object": `[1,2,3]`,
		"null":       `null`,
		"bad shape":  `{"format":"rollforge.roster","schema_version":2,"characters":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			j := newJSON(t)
			require.NoError(t, os.WriteFile(j.Path(), []byte(content), 0o644))

			_, err := j.Load(ctx)
			require.Error(t, err)
			var ce *CorruptDataError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, j.Path(), ce.Path)
		})
	}
}

func TestJSONFile_SaveRefusedUntilQuarantined(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	corrupt := []byte(`{"format":"rollforge.roster",`)
	require.NoError(t, os.WriteFile(j.Path(), corrupt, 0o644))

	_, err := j.Load(ctx)
	require.True(t, IsCorrupt(err))

	err = j.Save(ctx, &roster.Snapshot{NextSeq: 1})
	require.ErrorIs(t, err, ErrCorruptUnresolved)
	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	assert.Equal(t, corrupt, data)

	moved, err := j.Quarantine()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(moved), "characters.json.corrupt-"))
	kept, err := os.ReadFile(moved)
	require.NoError(t, err)
	assert.Equal(t, corrupt, kept)

	require.NoError(t, j.Save(ctx, &roster.Snapshot{NextSeq: 1}))
	snap, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
}

func TestJSONFile_SchemaErrors(t *testing.T) {
	ctx := context.Background()

	for name, content := range map[string]string{
		"newer version":  `{"format":"rollforge.roster","schema_version":3,"characters":[]}`,
		"older tagged":   `{"format":"rollforge.roster","schema_version":1,"characters":[]}`,
		"foreign format": `{"format":"someone.else","schema_version":2}`,
		"format, no tag": `{"format":"rollforge.roster","characters":[]}`,
		"version string": `{"format":"rollforge.roster","schema_version":"2"}`,
		"settings file":  `{"theme":"dark","autosave":true}`,
		"no characters":  `{"recent":{"path":"/tmp/x"},"window":[800,600]}`,
	} {
		t.Run(name, func(t *testing.T) {
			j := newJSON(t)
			require.NoError(t, os.WriteFile(j.Path(), []byte(content), 0o644))

			_, err := j.Load(ctx)
			require.Error(t, err)
			assert.True(t, IsSchemaError(err), "got %v", err)
			assert.ErrorIs(t, j.Save(ctx, &roster.Snapshot{}), ErrCorruptUnresolved)
		})
	}
}

const legacyFile = `{
  "5a0c7a8e-1111-4c1e-9a55-000000000002": {
    "id": "5a0c7a8e-1111-4c1e-9a55-000000000002",
    "name": "Thorin",
    "character_class": "Fighter",
    "proficiencies": ["Athletics", "Intimidation"],
    "image_path": null,
    "stats": {"STR": 16, "DEX": 12, "CON": 15, "INT": 8, "WIS": 10, "CHA": 11},
    "modifiers": {"STR": 3, "DEX": 1, "CON": 2, "INT": -1, "WIS": 0, "CHA": 0}
  },
  "5a0c7a8e-1111-4c1e-9a55-000000000001": {
    "id": "5a0c7a8e-1111-4c1e-9a55-000000000001",
    "name": "Lyra",
    "proficiencies": ["Arcana"],
    "image_path": "/home/dm/.local/share/RollForge/data/character_images/lyra.png",
    "stats": {"STR": 8, "DEX": 14, "CON": 12, "INT": 17, "WIS": 13, "CHA": 10}
  }
}`

func TestJSONFile_MigratesLegacyFile(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	require.NoError(t, os.WriteFile(j.Path(), []byte(legacyFile), 0o644))

	snap, err := j.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)

	thorin, lyra := snap.Records[0], snap.Records[1]
	assert.Equal(t, "5a0c7a8e-1111-4c1e-9a55-000000000002", thorin.ID)
	assert.Equal(t, "Thorin", thorin.Name)
	assert.Equal(t, 1, thorin.Level)
	assert.Equal(t, int64(1), thorin.Seq)
	assert.Equal(t, []string{"Athletics", "Intimidation"}, thorin.Proficiencies)
	assert.Equal(t, 16, thorin.Scores.STR)
	assert.Empty(t, thorin.Portrait)

	assert.Equal(t, "Lyra", lyra.Name)
	assert.Equal(t, "Fighter", lyra.Class, "missing class defaults")
	assert.Equal(t, int64(2), lyra.Seq)
	assert.Contains(t, lyra.Portrait, "lyra.png")
	assert.Equal(t, int64(3), snap.NextSeq)

	require.NoError(t, j.Save(ctx, snap))
	again, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestJSONFile_MigratesEmptyLegacyFile(t *testing.T) {
	j := newJSON(t)
	require.NoError(t, os.WriteFile(j.Path(), []byte("{}"), 0o644))

	snap, err := j.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
}

func TestJSONFile_QuarantinesBadEntries(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	require.NoError(t, j.Save(ctx, populated(t).Snapshot()))

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	var chars []json.RawMessage
	require.NoError(t, json.Unmarshal(doc["characters"], &chars))
	chars = append(chars,
		json.RawMessage(`{"id":"bad-1","name":"","class":"Fighter","level":1,"scores":{}}`),
		json.RawMessage(`{"id":"bad-2","nam":"typo"}`),
		json.RawMessage(`"not an object"`),
		chars[0],
	)
	doc["characters"], err = json.Marshal(chars)
	require.NoError(t, err)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(j.Path(), data, 0o644))

	snap, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 2)
	require.Len(t, snap.Quarantined, 4)
	assert.Equal(t, "bad-1", snap.Quarantined[0].ID)
	assert.Equal(t, "bad-2", snap.Quarantined[1].ID)
	assert.Empty(t, snap.Quarantined[2].ID)
	assert.Equal(t, snap.Records[0].ID, snap.Quarantined[3].ID)
	assert.NotContains(t, snap.Retired, "bad-1", "quarantined ids are held, not retired")
	assert.NotContains(t, snap.Retired, "bad-2")
	assert.NotContains(t, snap.Retired, snap.Records[0].ID, "duplicate of a live record stays live")
	assert.JSONEq(t, `"not an object"`, string(snap.Quarantined[2].Entry))

	require.NoError(t, j.Save(ctx, snap))
	again, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Quarantined, again.Quarantined)
	assert.Equal(t, snap.Records, again.Records)
}

func TestJSONFile_LegacyFileWithOneBadEntry(t *testing.T) {
	j := newJSON(t)
	doc := `{
		"a": {"id": "a", "name": "Anwen", "character_class": "Fighter", "stats": {"STR": 15, "DEX": 13, "CON": 14, "INT": 10, "WIS": 12, "CHA": 8}},
		"b": 42
	}`
	require.NoError(t, os.WriteFile(j.Path(), []byte(doc), 0o644))

	snap, err := j.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	require.Len(t, snap.Quarantined, 1)
	assert.JSONEq(t, `42`, string(snap.Quarantined[0].Entry))
}

func withoutRogue(t *testing.T) *rules.Ruleset {
	rs, _ := testutil.RulesWithout(t, "Rogue")
	return rs
}

func TestJSONFile_QuarantinedEntryReadmittedUnderOtherRules(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "characters.json")
	clock := testutil.NewClock()
	j := NewJSONFile(path, rules.Default(), WithNow(clock.Now))
	want := populated(t).Snapshot()
	require.NoError(t, j.Save(ctx, want))

	strict := NewJSONFile(path, withoutRogue(t), WithNow(clock.Now))
	snap, err := strict.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	require.Len(t, snap.Quarantined, 1)
	vex := want.Records[0]
	assert.Equal(t, vex.ID, snap.Quarantined[0].ID)
	assert.NotContains(t, snap.Retired, vex.ID)
	require.NoError(t, strict.Save(ctx, snap))

	// Loading under the same rules keeps it quarantined.
	again, err := strict.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Quarantined, again.Quarantined)

	back, err := j.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, back.Quarantined)
	assert.Equal(t, want.Records, back.Records)
	assert.Equal(t, want.NextSeq, back.NextSeq)
}

func TestJSONFile_QuarantinedLegacyEntryReadmitted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "characters.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"r": {"id": "r", "name": "Vex", "character_class": "Rogue", "stats": {"STR": 8, "DEX": 16, "CON": 12, "INT": 13, "WIS": 10, "CHA": 14}}
	}`), 0o644))
	clock := testutil.NewClock()

	strict := NewJSONFile(path, withoutRogue(t), WithNow(clock.Now))
	snap, err := strict.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Quarantined, 1)
	require.NoError(t, strict.Save(ctx, snap))

	back, err := NewJSONFile(path, rules.Default(), WithNow(clock.Now)).Load(ctx)
	require.NoError(t, err)
	require.Len(t, back.Records, 1)
	assert.Equal(t, "Vex", back.Records[0].Name)
	assert.Equal(t, "Rogue", back.Records[0].Class)
	assert.Empty(t, back.Quarantined)
}

func TestJSONFile_AssignsMissingSeq(t *testing.T) {
	ctx := context.Background()
	j := newJSON(t)
	doc := `{"format":"rollforge.roster","schema_version":2,"next_seq":0,"retired_ids":[],"quarantined":[],
	"characters":[
		{"id":"b","seq":4,"name":"B","class":"Wizard","level":1,"scores":{"STR":8,"DEX":14,"CON":12,"INT":16,"WIS":12,"CHA":10}},
		{"id":"a","name":"A","class":"Wizard","level":1,"scores":{"STR":8,"DEX":14,"CON":12,"INT":16,"WIS":12,"CHA":10}}
	]}`
	require.NoError(t, os.WriteFile(j.Path(), []byte(doc), 0o644))

	snap, err := j.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, int64(4), snap.Records[0].Seq)
	assert.Equal(t, int64(5), snap.Records[1].Seq)
	assert.Equal(t, int64(6), snap.NextSeq)
}

func TestJSONFile_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j := newJSON(t)

	_, err := j.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, j.Save(ctx, &roster.Snapshot{}), context.Canceled)
}

func TestMoveAsideMissingFile(t *testing.T) {
	dest, err := MoveAside(filepath.Join(t.TempDir(), "nope.json"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, dest)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rs := rules.Default()

	b, err := Open(ctx, KindJSON, filepath.Join(dir, "characters.json"), rs)
	require.NoError(t, err)
	assert.IsType(t, &JSONFile{}, b)
	require.NoError(t, b.Close())

	b, err = Open(ctx, KindSQLite, filepath.Join(dir, "characters.db"), rs)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, b)
	require.NoError(t, b.Close())

	_, err = Open(ctx, "xml", filepath.Join(dir, "x"), rs)
	assert.Error(t, err)
}
