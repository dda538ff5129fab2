package character

import (
	"fmt"

	"github.com/roach88/rollforge/internal/rules"
)

// AbilityLine is one row of the ability block.
type AbilityLine struct {
	Ability        rules.Ability `json:"ability"`
	Score          int           `json:"score"`
	Modifier       int           `json:"modifier"`
	Save           int           `json:"save"`
	SaveProficient bool          `json:"save_proficient"`
}

// SkillLine is one row of the skill block.
type SkillLine struct {
	Name       string        `json:"name"`
	Ability    rules.Ability `json:"ability"`
	Bonus      int           `json:"bonus"`
	Proficient bool          `json:"proficient"`
}

// Sheet holds every value derived from a record under a ruleset.
type Sheet struct {
	ProficiencyBonus  int           `json:"proficiency_bonus"`
	Abilities         []AbilityLine `json:"abilities"`
	Skills            []SkillLine   `json:"skills"`
	HitPoints         int           `json:"hit_points"`
	ArmorClass        int           `json:"armor_class"`
	Initiative        int           `json:"initiative"`
	PassivePerception int           `json:"passive_perception"`
}

// Modifier returns the sheet's modifier for a.
func (s *Sheet) Modifier(a rules.Ability) int {
	for _, line := range s.Abilities {
		if line.Ability == a {
			return line.Modifier
		}
	}
	return 0
}

// Skill returns the sheet row for the named skill.
func (s *Sheet) Skill(name string) (SkillLine, bool) {
	for _, line := range s.Skills {
		if line.Name == name {
			return line, true
		}
	}
	return SkillLine{}, false
}

// ComputeSheet derives the full sheet for r. It fails only when r does not
// fit rs, e.g. a record loaded under a different ruleset.
func ComputeSheet(rs *rules.Ruleset, r *Record) (*Sheet, error) {
	class, ok := rs.Class(r.Class)
	if !ok {
		return nil, fmt.Errorf("character %s: class %q not in ruleset %s", r.ID, r.Class, rs.Name)
	}
	prof, err := rs.ProficiencyBonus(r.Level)
	if err != nil {
		return nil, fmt.Errorf("character %s: %w", r.ID, err)
	}

	s := &Sheet{ProficiencyBonus: prof}
	for _, a := range rules.Abilities {
		mod := rules.Modifier(r.Scores.Get(a))
		line := AbilityLine{
			Ability:        a,
			Score:          r.Scores.Get(a),
			Modifier:       mod,
			Save:           mod,
			SaveProficient: class.ProficientSave(a),
		}
		if line.SaveProficient {
			line.Save += prof
		}
		s.Abilities = append(s.Abilities, line)
	}

	passive := 0
	for _, skill := range rs.Skills {
		line := SkillLine{
			Name:       skill.Name,
			Ability:    skill.Ability,
			Bonus:      s.Modifier(skill.Ability),
			Proficient: r.Proficient(skill.Name),
		}
		if line.Proficient {
			line.Bonus += prof
		}
		if skill.Name == "Perception" {
			passive = line.Bonus
		}
		s.Skills = append(s.Skills, line)
	}

	s.HitPoints = rs.HitPoints(class, r.Level, s.Modifier(rules.CON))
	s.ArmorClass = rs.ArmorClass(s.Modifier(rules.DEX))
	s.Initiative = s.Modifier(rules.DEX)
	if _, ok := rs.Skill("Perception"); ok {
		s.PassivePerception = rs.PassiveScore(passive)
	} else {
		s.PassivePerception = rs.PassiveScore(s.Modifier(rules.WIS))
	}
	return s, nil
}
