package testutil

import (
	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/rules"
)

// Draft returns a valid level 1 character draft with the given name and class.
func Draft(name, class string) character.Draft {
	return character.Draft{
		Name:  name,
		Class: class,
		Level: 1,
		Scores: map[rules.Ability]int{
			rules.STR: 15, rules.DEX: 14, rules.CON: 13,
			rules.INT: 12, rules.WIS: 10, rules.CHA: 8,
		},
	}
}

// Fighter returns Draft(name, "Fighter").
func Fighter(name string) character.Draft {
	return Draft(name, "Fighter")
}
