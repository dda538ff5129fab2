package app

import (
	"time"

	"github.com/roach88/rollforge/internal/dice"
	"github.com/roach88/rollforge/internal/roster"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	ids          roster.IDGenerator
	now          func() time.Time
	roller       *dice.Roller
	portraitName func() string
}

// WithIDGenerator replaces the UUIDv7 character id generator.
func WithIDGenerator(g roster.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRoller replaces the randomly seeded dice roller.
func WithRoller(r *dice.Roller) Option {
	return func(o *options) { o.roller = r }
}

// WithPortraitNames replaces the portrait file name generator.
func WithPortraitNames(f func() string) Option {
	return func(o *options) { o.portraitName = f }
}
