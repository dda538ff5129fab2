package rules

import (
	"fmt"
	"strings"
)

// ProficiencyStep sets the bonus from MinLevel upward, until the next step.
type ProficiencyStep struct {
	MinLevel int `json:"min_level"`
	Bonus    int `json:"bonus"`
}

// Class is a character archetype.
type Class struct {
	Name         string    `json:"name"`
	HitDie       int       `json:"hit_die"`
	SavingThrows []Ability `json:"saving_throws"`
	Expertise    bool      `json:"expertise"` // class may double down on proficient skills
}

// ProficientSave reports whether the class adds proficiency to saves on a.
func (c Class) ProficientSave(a Ability) bool {
	for _, s := range c.SavingThrows {
		if s == a {
			return true
		}
	}
	return false
}

// Skill is a trained action governed by one ability.
type Skill struct {
	Name    string  `json:"name"`
	Ability Ability `json:"ability"`
}

// Ruleset is the game-system rule table. Construct it with Default, Load or
// LoadFile; the zero value is not usable.
type Ruleset struct {
	Name           string            `json:"name"`
	MinScore       int               `json:"min_score"`
	MaxScore       int               `json:"max_score"`
	MaxLevel       int               `json:"max_level"`
	MaxNameLength  int               `json:"max_name_length"`
	DefaultClass   string            `json:"default_class"`
	BaseArmorClass int               `json:"base_armor_class"`
	PassiveBase    int               `json:"passive_base"`
	ExpertiseBonus int               `json:"expertise_bonus"`
	Proficiency    []ProficiencyStep `json:"proficiency"`
	Classes        []Class           `json:"classes"`
	Skills         []Skill           `json:"skills"`

	classIndex map[string]int
	skillIndex map[string]int
}

// index builds lookup tables and checks the invariants CUE cannot express.
func (rs *Ruleset) index() error {
	ve := &ValidationError{}

	if len(rs.Proficiency) == 0 {
		ve.Add("proficiency", "at least one step is required")
	} else if rs.Proficiency[0].MinLevel != 1 {
		ve.Add("proficiency", "first step must start at level 1, got %d", rs.Proficiency[0].MinLevel)
	}
	for i := 1; i < len(rs.Proficiency); i++ {
		prev, cur := rs.Proficiency[i-1], rs.Proficiency[i]
		if cur.MinLevel <= prev.MinLevel {
			ve.Add(fmt.Sprintf("proficiency[%d]", i), "levels must strictly increase (%d after %d)", cur.MinLevel, prev.MinLevel)
		}
		if cur.Bonus < prev.Bonus {
			ve.Add(fmt.Sprintf("proficiency[%d]", i), "bonus must not decrease (%d after %d)", cur.Bonus, prev.Bonus)
		}
	}

	rs.classIndex = make(map[string]int, len(rs.Classes))
	for i, c := range rs.Classes {
		key := strings.ToLower(c.Name)
		if _, dup := rs.classIndex[key]; dup {
			ve.Add(fmt.Sprintf("classes[%d]", i), "duplicate class %q", c.Name)
			continue
		}
		rs.classIndex[key] = i
	}
	if len(rs.Classes) == 0 {
		ve.Add("classes", "at least one class is required")
	}
	if _, ok := rs.classIndex[strings.ToLower(rs.DefaultClass)]; !ok {
		ve.Add("default_class", "unknown class %q", rs.DefaultClass)
	}

	rs.skillIndex = make(map[string]int, len(rs.Skills))
	for i, s := range rs.Skills {
		key := strings.ToLower(s.Name)
		if _, dup := rs.skillIndex[key]; dup {
			ve.Add(fmt.Sprintf("skills[%d]", i), "duplicate skill %q", s.Name)
			continue
		}
		if _, ok := ParseAbility(string(s.Ability)); !ok {
			ve.Add(fmt.Sprintf("skills[%d]", i), "unknown ability %q", s.Ability)
		}
		rs.skillIndex[key] = i
	}

	return ve.Err()
}

// Class looks up a class by case-insensitive name.
func (rs *Ruleset) Class(name string) (Class, bool) {
	i, ok := rs.classIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Class{}, false
	}
	return rs.Classes[i], true
}

// ClassNames returns the canonical class names in table order.
func (rs *Ruleset) ClassNames() []string {
	names := make([]string, len(rs.Classes))
	for i, c := range rs.Classes {
		names[i] = c.Name
	}
	return names
}

// Skill looks up a skill by case-insensitive name.
func (rs *Ruleset) Skill(name string) (Skill, bool) {
	i, ok := rs.skillIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Skill{}, false
	}
	return rs.Skills[i], true
}

// ValidateScore rejects scores outside [MinScore, MaxScore].
func (rs *Ruleset) ValidateScore(a Ability, value int) error {
	if value < rs.MinScore || value > rs.MaxScore {
		ve := &ValidationError{}
		ve.Add("scores."+string(a), "must be between %d and %d, got %d", rs.MinScore, rs.MaxScore, value)
		return ve
	}
	return nil
}

// ValidateLevel rejects levels outside [1, MaxLevel].
func (rs *Ruleset) ValidateLevel(level int) error {
	if level < 1 || level > rs.MaxLevel {
		ve := &ValidationError{}
		ve.Add("level", "must be between 1 and %d, got %d", rs.MaxLevel, level)
		return ve
	}
	return nil
}

// ProficiencyBonus returns the step-table bonus for level.
func (rs *Ruleset) ProficiencyBonus(level int) (int, error) {
	if err := rs.ValidateLevel(level); err != nil {
		return 0, err
	}
	bonus := rs.Proficiency[0].Bonus
	for _, step := range rs.Proficiency {
		if step.MinLevel > level {
			break
		}
		bonus = step.Bonus
	}
	return bonus, nil
}

// HitPoints returns maximum hit points: the full hit die at level 1, then the
// fixed average (die/2 + 1) per level, plus the CON modifier every level.
// Each level grants at least one hit point.
func (rs *Ruleset) HitPoints(c Class, level, conMod int) int {
	if level < 1 {
		return 0
	}
	total := max(c.HitDie+conMod, 1)
	perLevel := max(c.HitDie/2+1+conMod, 1)
	return total + (level-1)*perLevel
}

// ArmorClass returns unarmored armor class.
func (rs *Ruleset) ArmorClass(dexMod int) int {
	return rs.BaseArmorClass + dexMod
}

// PassiveScore returns the passive value of a check with the given bonus.
func (rs *Ruleset) PassiveScore(bonus int) int {
	return rs.PassiveBase + bonus
}
