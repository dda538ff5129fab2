package character

import (
	"maps"
	"slices"

	"github.com/roach88/rollforge/internal/rules"
)

// Patch holds the fields an edit form changed. Nil fields are left as they
// are; Scores entries override individual abilities.
type Patch struct {
	Name          *string
	Class         *string
	Level         *int
	Scores        map[rules.Ability]int
	Proficiencies *[]string
	Portrait      *string
	Notes         *string
	Inventory     *[]Item
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Class == nil && p.Level == nil && len(p.Scores) == 0 &&
		p.Proficiencies == nil && p.Portrait == nil && p.Notes == nil && p.Inventory == nil
}

// ApplyTo overwrites the fields of d that p sets.
func (p Patch) ApplyTo(d *Draft) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Class != nil {
		d.Class = *p.Class
	}
	if p.Level != nil {
		d.Level = *p.Level
	}
	if len(p.Scores) > 0 {
		merged := maps.Clone(d.Scores)
		if merged == nil {
			merged = make(map[rules.Ability]int, len(p.Scores))
		}
		maps.Copy(merged, p.Scores)
		d.Scores = merged
	}
	if p.Proficiencies != nil {
		d.Proficiencies = slices.Clone(*p.Proficiencies)
	}
	if p.Portrait != nil {
		d.Portrait = *p.Portrait
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.Inventory != nil {
		d.Inventory = slices.Clone(*p.Inventory)
	}
}
