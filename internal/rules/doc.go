// Package rules holds the attribute model: the six ability scores, their
// modifiers, and every number derived from a character's level and scores.
//
// All game-system specifics live in a Ruleset, which is configuration data
// written in CUE. The embedded default describes a 5th edition style game;
// LoadFile swaps in a variant without touching any Go code.
//
// Key constraints:
//   - Modifier is floor((score-10)/2), rounding toward negative infinity
//   - The proficiency table is a step function that never decreases
//   - Every function here is pure; failures are reported as ValidationError
package rules
