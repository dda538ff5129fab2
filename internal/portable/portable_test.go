package portable

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/rules"
	"github.com/roach88/rollforge/internal/testutil"
)

var exportedAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func sample(t *testing.T, id, name string) *character.Record {
	t.Helper()
	d := testutil.Draft(name, "Rogue")
	d.Level = 4
	d.Proficiencies = []string{"Stealth", "Sleight of Hand"}
	d.Notes = "Speaks Thieves' Cant & Elvish"
	d.Inventory = []character.Item{{Name: "Rope (50 ft)", Quantity: 1}}
	d.Portrait = "character_images/" + id + ".png"
	r, err := character.New(rules.Default(), id, 3, d, testutil.Epoch)
	require.NoError(t, err)
	return r
}

// sameContent compares everything but store identity and timestamps.
func sameContent(t *testing.T, want *character.Record, got character.Draft) {
	t.Helper()
	rec, err := character.New(rules.Default(), "imported", 1, got, exportedAt)
	require.NoError(t, err)
	assert.Equal(t, character.ToWire(want).Portable(), character.ToWire(rec).Portable())
}

func TestExportImportRoundTrip(t *testing.T) {
	rs := rules.Default()
	orig := sample(t, "char-0001", "Mirela")

	for _, enc := range []Encoding{JSON, YAML} {
		t.Run(string(enc), func(t *testing.T) {
			data, err := ExportRecord(orig, enc, exportedAt)
			require.NoError(t, err)

			d, err := ImportRecord(rs, data)
			require.NoError(t, err)
			sameContent(t, orig, d)
		})
	}
}

func TestExportOmitsStoreIdentity(t *testing.T) {
	data, err := ExportRecord(sample(t, "char-0042", "Mirela"), JSON, exportedAt)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, FormatCharacter, doc["format"])
	assert.EqualValues(t, Version, doc["version"])
	assert.Equal(t, "2026-03-04T05:06:07Z", doc["exported_at"])
	assert.Len(t, doc["digest"], 64)

	body := doc["character"].(map[string]any)
	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "seq")
	assert.NotContains(t, body, "created_at")
	assert.NotContains(t, string(data), "char-0042\"")
}

func TestImportIgnoresSourceID(t *testing.T) {
	src := `{"format":"rollforge.character","version":1,"exported_at":"2026-01-01T00:00:00Z",
	"character":{"id":"foreign-id","name":"Oskar","class":"Monk","level":2,
	"scores":{"STR":10,"DEX":16,"CON":12,"INT":10,"WIS":15,"CHA":8}}}`

	d, err := ImportRecord(rules.Default(), []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "Oskar", d.Name)
	assert.Equal(t, 16, d.Scores[rules.DEX])
}

func TestImportRejectsTamperedDigest(t *testing.T) {
	data, err := ExportRecord(sample(t, "char-0001", "Mirela"), JSON, exportedAt)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), `"level": 4`, `"level": 20`, 1)
	require.NotEqual(t, string(data), tampered)

	_, err = ImportRecord(rules.Default(), []byte(tampered))
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestImportWrapsValidationError(t *testing.T) {
	src := `{"format":"rollforge.character","version":1,"exported_at":"2026-01-01T00:00:00Z",
	"character":{"name":"","class":"Pirate","level":1,"scores":{"STR":40}}}`

	_, err := ImportRecord(rules.Default(), []byte(src))
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	var ve *character.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.Has("name"))
	assert.True(t, ve.Has("class"))
	assert.True(t, ve.Has("scores.STR"))
}

func TestImportRejectsMalformedInput(t *testing.T) {
	rs := rules.Default()
	cases := map[string]string{
		"empty":           "",
		"truncated json":  `{"format":"rollforge.character","vers`,
		"unknown field":   `{"format":"rollforge.character","version":1,"hp":7}`,
		"no format":       `{"version":1}`,
		"foreign format":  `{"format":"someone.else","version":1}`,
		"future version":  `{"format":"rollforge.character","version":2}`,
		"no character":    `{"format":"rollforge.character","version":1}`,
		"yaml scalar":     "just some text",
		"yaml unknown":    "format: rollforge.character\nversion: 1\nextra: true\n",
		"trailing data":   `{"format":"rollforge.character","version":1} {}`,
		"bundle with one": `{"format":"rollforge.bundle","version":1,"character":{"name":"x"}}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Import(rs, []byte(src))
			require.Error(t, err)
			assert.True(t, IsFormatError(err), "got %v", err)
		})
	}
}

func TestBundleRoundTripKeepsOrder(t *testing.T) {
	rs := rules.Default()
	recs := []*character.Record{
		sample(t, "char-0001", "Mirela"),
		sample(t, "char-0002", "Anselm"),
		sample(t, "char-0003", "Brisa"),
	}

	for _, enc := range []Encoding{JSON, YAML} {
		t.Run(string(enc), func(t *testing.T) {
			data, err := ExportBundle(recs, enc, exportedAt)
			require.NoError(t, err)

			drafts, err := Import(rs, data)
			require.NoError(t, err)
			require.Len(t, drafts, 3)
			for i, d := range drafts {
				sameContent(t, recs[i], d)
			}
		})
	}
}

func TestBundleImportIsAllOrNothing(t *testing.T) {
	rs := rules.Default()
	data, err := ExportBundle([]*character.Record{
		sample(t, "char-0001", "Mirela"),
		sample(t, "char-0002", "Anselm"),
	}, JSON, exportedAt)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), `"Anselm"`, `"Anselma"`, 1)
	drafts, err := Import(rs, []byte(tampered))
	require.Error(t, err)
	assert.Nil(t, drafts)
	assert.Contains(t, err.Error(), "characters[1]")
}

func TestImportRecordRejectsBundleOfMany(t *testing.T) {
	data, err := ExportBundle([]*character.Record{
		sample(t, "char-0001", "Mirela"),
		sample(t, "char-0002", "Anselm"),
	}, JSON, exportedAt)
	require.NoError(t, err)

	_, err = ImportRecord(rules.Default(), data)
	assert.True(t, IsFormatError(err))
}

func TestYAMLExportIsReadable(t *testing.T) {
	data, err := ExportRecord(sample(t, "char-0001", "Mirela"), YAML, exportedAt)
	require.NoError(t, err)

	s := string(data)
	assert.True(t, strings.HasPrefix(s, "format: rollforge.character\n"))
	assert.Contains(t, s, "\n  name: Mirela\n")
	assert.Contains(t, s, "\n    STR: 15\n")
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{"": JSON, "json": JSON, "yaml": YAML, "yml": YAML} {
		got, err := ParseEncoding(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseEncoding("toml")
	assert.Error(t, err)
}
