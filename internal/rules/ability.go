package rules

import (
	"fmt"
	"strings"
)

// Ability is one of the six core ability codes.
type Ability string

const (
	STR Ability = "STR"
	DEX Ability = "DEX"
	CON Ability = "CON"
	INT Ability = "INT"
	WIS Ability = "WIS"
	CHA Ability = "CHA"
)

// Abilities lists the six abilities in sheet order.
var Abilities = []Ability{STR, DEX, CON, INT, WIS, CHA}

// ParseAbility resolves a case-insensitive ability code.
func ParseAbility(s string) (Ability, bool) {
	a := Ability(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Abilities {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// Scores holds one value per ability.
type Scores struct {
	STR int `json:"STR" yaml:"STR"`
	DEX int `json:"DEX" yaml:"DEX"`
	CON int `json:"CON" yaml:"CON"`
	INT int `json:"INT" yaml:"INT"`
	WIS int `json:"WIS" yaml:"WIS"`
	CHA int `json:"CHA" yaml:"CHA"`
}

// Get returns the score for a.
// Panics on an unknown ability, which is a programming error.
func (s Scores) Get(a Ability) int {
	switch a {
	case STR:
		return s.STR
	case DEX:
		return s.DEX
	case CON:
		return s.CON
	case INT:
		return s.INT
	case WIS:
		return s.WIS
	case CHA:
		return s.CHA
	}
	panic(fmt.Sprintf("rules: unknown ability %q", a))
}

// Set stores v as the score for a.
func (s *Scores) Set(a Ability, v int) {
	switch a {
	case STR:
		s.STR = v
	case DEX:
		s.DEX = v
	case CON:
		s.CON = v
	case INT:
		s.INT = v
	case WIS:
		s.WIS = v
	case CHA:
		s.CHA = v
	default:
		panic(fmt.Sprintf("rules: unknown ability %q", a))
	}
}

// Map returns the scores keyed by ability code.
func (s Scores) Map() map[string]int {
	m := make(map[string]int, len(Abilities))
	for _, a := range Abilities {
		m[string(a)] = s.Get(a)
	}
	return m
}

// Modifier returns floor((score-10)/2).
func Modifier(score int) int {
	d := score - 10
	if d < 0 {
		// Go division truncates toward zero; shift odd negatives down.
		return -((-d + 1) / 2)
	}
	return d / 2
}
