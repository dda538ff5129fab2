package character

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollforge/internal/rules"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func scores(str, dex, con, intl, wis, cha int) map[rules.Ability]int {
	return map[rules.Ability]int{
		rules.STR: str, rules.DEX: dex, rules.CON: con,
		rules.INT: intl, rules.WIS: wis, rules.CHA: cha,
	}
}

func validDraft() Draft {
	return Draft{
		Name:          "  Vex  ",
		Class:         "rogue",
		Level:         5,
		Scores:        scores(8, 16, 14, 12, 13, 10),
		Proficiencies: []string{"stealth", "Perception", "Stealth"},
		Notes:         "owes the guild money",
		Inventory:     []Item{{Name: "Dagger", Quantity: 2}},
	}
}

func TestNewNormalizesDraft(t *testing.T) {
	rs := rules.Default()

	r, err := New(rs, "id-1", 1, validDraft(), epoch)
	require.NoError(t, err)

	assert.Equal(t, "id-1", r.ID)
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, "Vex", r.Name)
	assert.Equal(t, "Rogue", r.Class)
	assert.Equal(t, 5, r.Level)
	assert.Equal(t, 16, r.Scores.DEX)
	assert.Equal(t, []string{"Perception", "Stealth"}, r.Proficiencies)
	assert.Equal(t, epoch, r.CreatedAt)
	assert.Equal(t, epoch, r.UpdatedAt)
}

func TestNewReportsEveryViolatedField(t *testing.T) {
	rs := rules.Default()

	d := Draft{
		Name:          "",
		Class:         "Necromancer",
		Level:         0,
		Scores:        map[rules.Ability]int{rules.STR: 0, rules.DEX: 31, "LCK": 10},
		Proficiencies: []string{"Juggling"},
		Inventory:     []Item{{Name: " ", Quantity: 0}},
	}
	_, err := New(rs, "id-1", 1, d, epoch)
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	for _, field := range []string{
		"name", "class", "level",
		"scores.STR", "scores.DEX", "scores.CON", "scores.INT", "scores.WIS", "scores.CHA",
		"scores.LCK", "proficiencies", "inventory[0].name", "inventory[0].quantity",
	} {
		assert.True(t, ve.Has(field), "missing field error for %s", field)
	}
}

func TestNewRejectsLongName(t *testing.T) {
	rs := rules.Default()
	d := validDraft()
	d.Name = strings.Repeat("x", rs.MaxNameLength+1)

	err := Validate(rs, d)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.Has("name"))
}

func TestNewRequiresID(t *testing.T) {
	_, err := New(rules.Default(), "", 1, validDraft(), epoch)
	require.Error(t, err)
}

func TestWithOverridesLeavesOriginalUntouched(t *testing.T) {
	rs := rules.Default()
	orig, err := New(rs, "id-1", 1, validDraft(), epoch)
	require.NoError(t, err)
	before := orig.Clone()

	name := "Vex the Bold"
	level := 6
	later := epoch.Add(time.Hour)
	edited, err := orig.WithOverrides(rs, Patch{
		Name:   &name,
		Level:  &level,
		Scores: map[rules.Ability]int{rules.STR: 10},
	}, later)
	require.NoError(t, err)

	assert.Equal(t, before, orig)
	assert.Equal(t, "Vex the Bold", edited.Name)
	assert.Equal(t, 6, edited.Level)
	assert.Equal(t, 10, edited.Scores.STR)
	assert.Equal(t, 16, edited.Scores.DEX)
	assert.Equal(t, orig.ID, edited.ID)
	assert.Equal(t, orig.CreatedAt, edited.CreatedAt)
	assert.Equal(t, later, edited.UpdatedAt)
	assert.True(t, orig.Equal(edited))
}

func TestWithOverridesRejectsInvalidPatch(t *testing.T) {
	rs := rules.Default()
	orig, err := New(rs, "id-1", 1, validDraft(), epoch)
	require.NoError(t, err)

	_, err = orig.WithOverrides(rs, Patch{Scores: map[rules.Ability]int{rules.CHA: 99}}, epoch)
	require.Error(t, err)
	assert.True(t, rules.IsValidationError(err))
	assert.Equal(t, 10, orig.Scores.CHA)
}

func TestPatchIsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	notes := ""
	assert.False(t, Patch{Notes: &notes}.IsEmpty())
}

func TestCloneIsDeep(t *testing.T) {
	rs := rules.Default()
	r, err := New(rs, "id-1", 1, validDraft(), epoch)
	require.NoError(t, err)

	c := r.Clone()
	c.Proficiencies[0] = "Arcana"
	c.Inventory[0].Quantity = 99

	assert.Equal(t, "Perception", r.Proficiencies[0])
	assert.Equal(t, 2, r.Inventory[0].Quantity)
}

func TestEqualComparesIDs(t *testing.T) {
	a := &Record{ID: "x", Name: "A"}
	b := &Record{ID: "x", Name: "B"}
	c := &Record{ID: "y", Name: "A"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestDraftReproducesRecord(t *testing.T) {
	rs := rules.Default()
	r, err := New(rs, "id-1", 1, validDraft(), epoch)
	require.NoError(t, err)

	again, err := New(rs, "id-1", 1, r.Draft(), epoch)
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

func TestWireRoundTrip(t *testing.T) {
	rs := rules.Default()
	r, err := New(rs, "id-1", 7, validDraft(), epoch)
	require.NoError(t, err)

	back, err := FromWire(rs, ToWire(r))
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestWirePortableDropsIdentity(t *testing.T) {
	rs := rules.Default()
	r, err := New(rs, "id-1", 7, validDraft(), epoch)
	require.NoError(t, err)

	w := ToWire(r).Portable()
	assert.Empty(t, w.ID)
	assert.Zero(t, w.Seq)
	assert.Nil(t, w.CreatedAt)
	assert.Nil(t, w.UpdatedAt)
	assert.Equal(t, "Vex", w.Name)
}

func TestFromWireRevalidates(t *testing.T) {
	rs := rules.Default()
	w := Wire{ID: "id-1", Name: "Bad", Class: "Fighter", Level: 1, Scores: map[string]int{"str": 10}}

	_, err := FromWire(rs, w)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.False(t, ve.Has("scores.STR"))
	assert.True(t, ve.Has("scores.DEX"))
}
