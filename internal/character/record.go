package character

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rollforge/internal/rules"
)

// ValidationError is the rules package's multi-field validation error,
// re-exported for callers at the form boundary.
type ValidationError = rules.ValidationError

// Item is one inventory entry.
type Item struct {
	Name     string `json:"name" yaml:"name"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// Record is a validated character.
type Record struct {
	ID            string
	Seq           int64 // logical creation order, assigned by the roster
	Name          string
	Class         string
	Level         int
	Scores        rules.Scores
	Proficiencies []string // canonical skill names, sorted
	Portrait      string   // path or identifier; the image itself is not owned
	Notes         string
	Inventory     []Item
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Draft is the unvalidated payload of a create or edit form.
// Scores are keyed by ability so a missing ability can be reported.
type Draft struct {
	Name          string
	Class         string
	Level         int
	Scores        map[rules.Ability]int
	Proficiencies []string
	Portrait      string
	Notes         string
	Inventory     []Item
}

// fields is the normalised content of a valid draft.
type fields struct {
	name          string
	class         string
	level         int
	scores        rules.Scores
	proficiencies []string
	portrait      string
	notes         string
	inventory     []Item
}

// Validate checks d against rs and reports every violated field at once.
func Validate(rs *rules.Ruleset, d Draft) error {
	_, err := normalize(rs, d)
	return err
}

// New builds a record with the given roster-assigned identity.
func New(rs *rules.Ruleset, id string, seq int64, d Draft, now time.Time) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("character: id is required")
	}
	f, err := normalize(rs, d)
	if err != nil {
		return nil, err
	}
	now = now.UTC().Round(0)
	r := &Record{ID: id, Seq: seq, CreatedAt: now, UpdatedAt: now}
	r.apply(f)
	return r, nil
}

// Replace returns a new record with d's content and r's identity.
// r is not modified.
func (r *Record) Replace(rs *rules.Ruleset, d Draft, now time.Time) (*Record, error) {
	f, err := normalize(rs, d)
	if err != nil {
		return nil, err
	}
	out := &Record{ID: r.ID, Seq: r.Seq, CreatedAt: r.CreatedAt, UpdatedAt: now.UTC().Round(0)}
	out.apply(f)
	return out, nil
}

// WithOverrides stages an edit: it returns a validated copy of r with p
// applied, leaving r untouched until the caller commits the copy.
func (r *Record) WithOverrides(rs *rules.Ruleset, p Patch, now time.Time) (*Record, error) {
	d := r.Draft()
	p.ApplyTo(&d)
	return r.Replace(rs, d, now)
}

// Draft returns the form payload that reproduces r.
func (r *Record) Draft() Draft {
	scores := make(map[rules.Ability]int, len(rules.Abilities))
	for _, a := range rules.Abilities {
		scores[a] = r.Scores.Get(a)
	}
	return Draft{
		Name:          r.Name,
		Class:         r.Class,
		Level:         r.Level,
		Scores:        scores,
		Proficiencies: slices.Clone(r.Proficiencies),
		Portrait:      r.Portrait,
		Notes:         r.Notes,
		Inventory:     slices.Clone(r.Inventory),
	}
}

// Equal reports whether r and other are the same character (same id).
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Proficiencies = slices.Clone(r.Proficiencies)
	out.Inventory = slices.Clone(r.Inventory)
	return &out
}

// Proficient reports whether r is trained in skill.
func (r *Record) Proficient(skill string) bool {
	for _, p := range r.Proficiencies {
		if strings.EqualFold(p, skill) {
			return true
		}
	}
	return false
}

func (r *Record) String() string {
	return fmt.Sprintf("%s (%s %d)", r.Name, r.Class, r.Level)
}

func (r *Record) apply(f fields) {
	r.Name = f.name
	r.Class = f.class
	r.Level = f.level
	r.Scores = f.scores
	r.Proficiencies = f.proficiencies
	r.Portrait = f.portrait
	r.Notes = f.notes
	r.Inventory = f.inventory
}

// normalize validates every field of d and returns the canonical form.
func normalize(rs *rules.Ruleset, d Draft) (fields, error) {
	ve := &ValidationError{}
	var f fields

	f.name = norm.NFC.String(strings.TrimSpace(d.Name))
	switch n := utf8.RuneCountInString(f.name); {
	case n == 0:
		ve.Add("name", "must not be empty")
	case n > rs.MaxNameLength:
		ve.Add("name", "must be at most %d characters, got %d", rs.MaxNameLength, n)
	}

	class, ok := rs.Class(d.Class)
	if !ok {
		ve.Add("class", "unknown class %q, must be one of %s", d.Class, strings.Join(rs.ClassNames(), ", "))
	}
	f.class = class.Name

	if err := rs.ValidateLevel(d.Level); err != nil {
		ve.Merge("", err.(*ValidationError))
	}
	f.level = d.Level

	for _, a := range rules.Abilities {
		v, present := d.Scores[a]
		if !present {
			ve.Add("scores."+string(a), "is required")
			continue
		}
		if err := rs.ValidateScore(a, v); err != nil {
			ve.Merge("", err.(*ValidationError))
			continue
		}
		f.scores.Set(a, v)
	}
	var unknown []string
	for a := range d.Scores {
		if known, ok := rules.ParseAbility(string(a)); !ok || known != a {
			unknown = append(unknown, string(a))
		}
	}
	slices.Sort(unknown)
	for _, a := range unknown {
		ve.Add("scores."+a, "unknown ability")
	}

	seen := make(map[string]bool, len(d.Proficiencies))
	for _, name := range d.Proficiencies {
		skill, ok := rs.Skill(name)
		if !ok {
			ve.Add("proficiencies", "unknown skill %q", name)
			continue
		}
		if !seen[skill.Name] {
			seen[skill.Name] = true
			f.proficiencies = append(f.proficiencies, skill.Name)
		}
	}
	slices.Sort(f.proficiencies)

	f.portrait = strings.TrimSpace(d.Portrait)
	f.notes = d.Notes

	for i, item := range d.Inventory {
		item.Name = norm.NFC.String(strings.TrimSpace(item.Name))
		if item.Name == "" {
			ve.Add(fmt.Sprintf("inventory[%d].name", i), "must not be empty")
		}
		if item.Quantity < 1 {
			ve.Add(fmt.Sprintf("inventory[%d].quantity", i), "must be at least 1, got %d", item.Quantity)
		}
		f.inventory = append(f.inventory, item)
	}

	if err := ve.Err(); err != nil {
		return fields{}, err
	}
	return f, nil
}
