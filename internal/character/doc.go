// Package character defines the Character Record: identity, ability scores,
// trained skills, portrait reference, notes and inventory.
//
// Records are built only through validated constructors (New, Replace,
// WithOverrides, FromWire). A Record handed out by the roster is a copy; edits
// are staged with WithOverrides and become visible only once the roster
// commits them.
//
// Derived numbers (modifiers, saves, skills, hit points, armor class) are
// never stored. Sheet recomputes them from the ruleset on demand.
package character
