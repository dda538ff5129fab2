package character

import (
	"fmt"

	"github.com/roach88/rollforge/internal/rules"
)

// CheckResult breaks down an ability or skill check.
type CheckResult struct {
	Target           string        `json:"target"`
	Ability          rules.Ability `json:"ability"`
	IsSkill          bool          `json:"is_skill"`
	Proficient       bool          `json:"proficient"`
	Die              int           `json:"die"`
	AbilityModifier  int           `json:"ability_modifier"`
	ProficiencyBonus int           `json:"proficiency_bonus"`
	ExpertiseBonus   int           `json:"expertise_bonus"`
	Total            int           `json:"total"`
}

// Check totals a d20 result for target, which is a skill name or an ability
// code. Proficiency applies only to skills the character is trained in.
// Expertise applies only when requested, the class allows it, and the
// character is proficient in the skill.
func Check(rs *rules.Ruleset, r *Record, target string, die int, expertise bool) (*CheckResult, error) {
	if die < 1 || die > 20 {
		ve := &ValidationError{}
		ve.Add("die", "must be between 1 and 20, got %d", die)
		return nil, ve
	}

	res := &CheckResult{Die: die}
	if skill, ok := rs.Skill(target); ok {
		res.Target = skill.Name
		res.Ability = skill.Ability
		res.IsSkill = true
		res.Proficient = r.Proficient(skill.Name)
	} else if a, ok := rules.ParseAbility(target); ok {
		res.Target = string(a)
		res.Ability = a
	} else {
		ve := &ValidationError{}
		ve.Add("target", "unknown skill or ability %q", target)
		return nil, ve
	}

	res.AbilityModifier = rules.Modifier(r.Scores.Get(res.Ability))
	if res.Proficient {
		prof, err := rs.ProficiencyBonus(r.Level)
		if err != nil {
			return nil, fmt.Errorf("character %s: %w", r.ID, err)
		}
		res.ProficiencyBonus = prof

		class, ok := rs.Class(r.Class)
		if expertise && ok && class.Expertise {
			res.ExpertiseBonus = rs.ExpertiseBonus
		}
	}
	res.Total = res.Die + res.AbilityModifier + res.ProficiencyBonus + res.ExpertiseBonus
	return res, nil
}
