package character

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/rollforge/internal/rules"
)

// Wire is the serialised form of a record. The persistence layer and the
// import/export adapter both use it, so field names here are a stable format:
// renaming one needs a schema migration.
type Wire struct {
	ID            string         `json:"id,omitempty" yaml:"id,omitempty"`
	Seq           int64          `json:"seq,omitempty" yaml:"seq,omitempty"`
	Name          string         `json:"name" yaml:"name"`
	Class         string         `json:"class" yaml:"class"`
	Level         int            `json:"level" yaml:"level"`
	Scores        map[string]int `json:"scores" yaml:"scores"`
	Proficiencies []string       `json:"proficiencies,omitempty" yaml:"proficiencies,omitempty"`
	Portrait      string         `json:"portrait,omitempty" yaml:"portrait,omitempty"`
	Notes         string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	Inventory     []Item         `json:"inventory,omitempty" yaml:"inventory,omitempty"`
	CreatedAt     *time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// ToWire converts r for storage.
func ToWire(r *Record) Wire {
	created, updated := r.CreatedAt, r.UpdatedAt
	w := Wire{
		ID:            r.ID,
		Seq:           r.Seq,
		Name:          r.Name,
		Class:         r.Class,
		Level:         r.Level,
		Scores:        r.Scores.Map(),
		Proficiencies: slices.Clone(r.Proficiencies),
		Portrait:      r.Portrait,
		Notes:         r.Notes,
		Inventory:     slices.Clone(r.Inventory),
	}
	if !created.IsZero() {
		w.CreatedAt = &created
	}
	if !updated.IsZero() {
		w.UpdatedAt = &updated
	}
	return w
}

// Portable strips store-specific identity and timestamps, leaving only the
// character content.
func (w Wire) Portable() Wire {
	w.ID = ""
	w.Seq = 0
	w.CreatedAt = nil
	w.UpdatedAt = nil
	return w
}

// Draft converts w into form input. Ability keys are matched
// case-insensitively; unrecognised keys are kept so validation reports them.
func (w Wire) Draft() Draft {
	var scores map[rules.Ability]int
	if w.Scores != nil {
		scores = make(map[rules.Ability]int, len(w.Scores))
		for k, v := range w.Scores {
			a, ok := rules.ParseAbility(k)
			if !ok {
				a = rules.Ability(k)
			}
			scores[a] = v
		}
	}
	return Draft{
		Name:          w.Name,
		Class:         w.Class,
		Level:         w.Level,
		Scores:        scores,
		Proficiencies: slices.Clone(w.Proficiencies),
		Portrait:      w.Portrait,
		Notes:         w.Notes,
		Inventory:     slices.Clone(w.Inventory),
	}
}

// FromWire rebuilds a stored record, re-validating it against rs.
// Derived values are recomputed later by Sheet; nothing derived is trusted.
func FromWire(rs *rules.Ruleset, w Wire) (*Record, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("character: stored record has no id")
	}
	f, err := normalize(rs, w.Draft())
	if err != nil {
		return nil, err
	}
	r := &Record{ID: w.ID, Seq: w.Seq}
	if w.CreatedAt != nil {
		r.CreatedAt = w.CreatedAt.UTC()
	}
	if w.UpdatedAt != nil {
		r.UpdatedAt = w.UpdatedAt.UTC()
	}
	r.apply(f)
	return r, nil
}
