package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/config"
	"github.com/roach88/rollforge/internal/dice"
	"github.com/roach88/rollforge/internal/persist"
	"github.com/roach88/rollforge/internal/portable"
	"github.com/roach88/rollforge/internal/portrait"
	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
)

// Manager runs one session over a data directory.
type Manager struct {
	cfg       config.Config
	rules     *rules.Ruleset
	backend   persist.Backend
	roster    *roster.Roster
	portraits *portrait.Store
	roller    *dice.Roller
	logger    *zap.Logger
	now       func() time.Time

	// movedAside is where an unreadable data file went, if anywhere.
	movedAside string
}

// quarantiner is implemented by backends whose file can be moved aside
// while open.
type quarantiner interface {
	Quarantine() (string, error)
}

// Open loads the roster described by cfg.
//
// An unreadable data file is handled per cfg.OnCorrupt: "fail" returns the
// persist.CorruptDataError, "quarantine" moves the file aside and starts
// empty. A persist.SchemaError is always returned.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	rs := rules.Default()
	if cfg.RulesFile != "" {
		loaded, err := rules.LoadFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		rs = loaded
		logger.Info("ruleset loaded", zap.String("name", rs.Name), zap.String("path", cfg.RulesFile))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	m := &Manager{cfg: cfg, rules: rs, logger: logger, now: o.now}

	backend, snap, err := m.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	m.backend = backend

	ropts := []roster.Option{
		roster.WithFlusher(backend, cfg.AutoSave),
		roster.WithLogger(logger.Named("roster")),
		roster.WithNow(o.now),
	}
	if o.ids != nil {
		ropts = append(ropts, roster.WithIDGenerator(o.ids))
	}
	m.roster = roster.New(rs, ropts...)
	if err := m.roster.Restore(snap); err != nil {
		backend.Close()
		return nil, fmt.Errorf("restore roster: %w", err)
	}

	popts := []portrait.Option{portrait.WithLogger(logger.Named("portrait"))}
	if o.portraitName != nil {
		popts = append(popts, portrait.WithNames(o.portraitName))
	}
	m.portraits = portrait.New(cfg.ImagesDir(), popts...)

	m.roller = o.roller
	if m.roller == nil {
		if m.roller, err = dice.NewRandom(); err != nil {
			backend.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) openBackend(ctx context.Context) (persist.Backend, *roster.Snapshot, error) {
	path := m.cfg.StorePath()
	popts := []persist.Option{
		persist.WithLogger(m.logger.Named("persist")),
		persist.WithNow(m.now),
	}

	backend, err := persist.Open(ctx, persist.Kind(m.cfg.Backend), path, m.rules, popts...)
	if persist.IsCorrupt(err) && m.cfg.OnCorrupt == config.OnCorruptQuarantine {
		if m.movedAside, err = persist.QuarantineDatabase(path, m.now()); err != nil {
			return nil, nil, err
		}
		m.logger.Warn("data file unreadable, moved aside and starting empty",
			zap.String("path", path), zap.String("moved_to", m.movedAside))
		backend, err = persist.Open(ctx, persist.Kind(m.cfg.Backend), path, m.rules, popts...)
	}
	if err != nil {
		return nil, nil, err
	}

	snap, err := backend.Load(ctx)
	if err == nil {
		return backend, snap, nil
	}
	q, canMove := backend.(quarantiner)
	if persist.IsCorrupt(err) && m.cfg.OnCorrupt == config.OnCorruptQuarantine && canMove {
		if m.movedAside, err = q.Quarantine(); err != nil {
			backend.Close()
			return nil, nil, err
		}
		m.logger.Warn("data file unreadable, moved aside and starting empty",
			zap.String("path", path), zap.String("moved_to", m.movedAside))
		return backend, &roster.Snapshot{NextSeq: 1}, nil
	}
	backend.Close()
	return nil, nil, err
}

// MovedAside returns where an unreadable data file was moved on Open, or "".
func (m *Manager) MovedAside() string {
	return m.movedAside
}

// Ruleset returns the active rules.
func (m *Manager) Ruleset() *rules.Ruleset {
	return m.rules
}

// Config returns the configuration the manager was opened with.
func (m *Manager) Config() config.Config {
	return m.cfg
}

// Create validates d and adds a character. A portrait path in d is copied
// into the data directory first.
func (m *Manager) Create(ctx context.Context, d character.Draft) (*character.Record, error) {
	if err := character.Validate(m.rules, d); err != nil {
		return nil, err
	}
	d, copied, err := m.adoptPortrait(d)
	if err != nil {
		return nil, err
	}
	rec, err := m.roster.Create(ctx, d)
	if rec == nil {
		m.releasePortrait(copied)
	}
	return rec, err
}

// Update replaces the content of id with d.
func (m *Manager) Update(ctx context.Context, id string, d character.Draft) (*character.Record, error) {
	old, err := m.roster.Get(id)
	if err != nil {
		return nil, err
	}
	if err := character.Validate(m.rules, d); err != nil {
		return nil, err
	}
	d, copied, err := m.adoptPortrait(d)
	if err != nil {
		return nil, err
	}
	rec, err := m.roster.Update(ctx, id, d)
	m.settlePortrait(old, rec, copied)
	return rec, err
}

// Patch applies the changed fields in p to id.
func (m *Manager) Patch(ctx context.Context, id string, p character.Patch) (*character.Record, error) {
	old, err := m.roster.Get(id)
	if err != nil {
		return nil, err
	}
	staged, err := old.WithOverrides(m.rules, p, m.now())
	if err != nil {
		return nil, err
	}
	copied := ""
	if p.Portrait != nil {
		d, c, err := m.adoptPortrait(staged.Draft())
		if err != nil {
			return nil, err
		}
		stored := d.Portrait
		p.Portrait = &stored
		copied = c
	}
	rec, err := m.roster.Patch(ctx, id, p)
	m.settlePortrait(old, rec, copied)
	return rec, err
}

// Delete removes id and its owned portrait.
func (m *Manager) Delete(ctx context.Context, id string) (*character.Record, error) {
	removed, err := m.roster.Delete(ctx, id)
	if removed != nil && err == nil {
		m.releasePortrait(removed.Portrait)
	}
	return removed, err
}

// Get returns the character with id.
func (m *Manager) Get(id string) (*character.Record, error) {
	return m.roster.Get(id)
}

// List returns all characters in creation order.
func (m *Manager) List() []*character.Record {
	return m.roster.List()
}

// Sheet computes every derived value for id.
func (m *Manager) Sheet(id string) (*character.Sheet, error) {
	rec, err := m.roster.Get(id)
	if err != nil {
		return nil, err
	}
	return character.ComputeSheet(m.rules, rec)
}

// Check rolls target for id. A nil die rolls a d20; otherwise the given
// physical result is used.
func (m *Manager) Check(id, target string, die *int, expertise bool) (*character.CheckResult, error) {
	rec, err := m.roster.Get(id)
	if err != nil {
		return nil, err
	}
	var n int
	if die != nil {
		n = *die
	} else {
		n = m.roller.D20()
	}
	return character.Check(m.rules, rec, target, n, expertise)
}

// Export renders one character as a portable document.
func (m *Manager) Export(id string, enc portable.Encoding) ([]byte, error) {
	rec, err := m.roster.Get(id)
	if err != nil {
		return nil, err
	}
	return portable.ExportRecord(rec, enc, m.now())
}

// ExportAll renders every character as one bundle.
func (m *Manager) ExportAll(enc portable.Encoding) ([]byte, error) {
	return portable.ExportBundle(m.roster.List(), enc, m.now())
}

// Import adds every character in data under fresh ids, or none of them.
func (m *Manager) Import(ctx context.Context, data []byte) ([]*character.Record, error) {
	drafts, err := portable.Import(m.rules, data)
	if err != nil {
		return nil, err
	}
	drafts, copies, err := m.copyPortraits(drafts)
	if err != nil {
		return nil, err
	}
	recs, err := m.roster.ImportAll(ctx, drafts)
	if recs == nil {
		for _, c := range copies {
			m.releasePortrait(c)
		}
	}
	if err == nil || recs != nil {
		m.logger.Info("characters imported", zap.Int("count", len(recs)))
	}
	return recs, err
}

// Quarantined returns how many stored entries could not be loaded.
func (m *Manager) Quarantined() int {
	return len(m.roster.Quarantined())
}

// Save flushes the roster to disk.
func (m *Manager) Save(ctx context.Context) error {
	return m.roster.Flush(ctx)
}

// Close flushes pending changes and releases the backend.
func (m *Manager) Close(ctx context.Context) error {
	var flushErr error
	if m.roster.Dirty() {
		flushErr = m.roster.Flush(ctx)
	}
	return errors.Join(flushErr, m.backend.Close())
}

// adoptPortrait copies an external portrait into the store and returns the
// draft pointing at the copy plus the copied path ("" if nothing was copied).
func (m *Manager) adoptPortrait(d character.Draft) (character.Draft, string, error) {
	if d.Portrait == "" || m.portraits.Owns(d.Portrait) {
		return d, "", nil
	}
	dest, err := m.portraits.Import(d.Portrait)
	if err != nil {
		ve := &character.ValidationError{}
		ve.Add("portrait", "%v", err)
		return d, "", ve
	}
	d.Portrait = dest
	return d, dest, nil
}

// copyPortraits gives every imported draft its own copy of its portrait, so
// deleting one record never removes a file another record points at. A
// portrait that no longer exists is kept as a bare reference.
func (m *Manager) copyPortraits(drafts []character.Draft) ([]character.Draft, []string, error) {
	out := make([]character.Draft, len(drafts))
	var copies []string
	ve := &character.ValidationError{}
	for i, d := range drafts {
		out[i] = d
		if d.Portrait == "" {
			continue
		}
		if _, err := os.Stat(d.Portrait); errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("imported portrait not found", zap.String("path", d.Portrait))
			continue
		}
		dest, err := m.portraits.Copy(d.Portrait)
		if err != nil {
			ve.Add(fmt.Sprintf("characters[%d].portrait", i), "%v", err)
			continue
		}
		out[i].Portrait = dest
		copies = append(copies, dest)
	}
	if err := ve.Err(); err != nil {
		for _, c := range copies {
			m.releasePortrait(c)
		}
		return nil, nil, err
	}
	return out, copies, nil
}

// settlePortrait removes whichever portrait is no longer referenced after
// an edit: the old one on success, the new copy on failure.
func (m *Manager) settlePortrait(old, rec *character.Record, copied string) {
	if rec == nil {
		m.releasePortrait(copied)
		return
	}
	if old.Portrait != rec.Portrait {
		m.releasePortrait(old.Portrait)
	}
}

func (m *Manager) releasePortrait(path string) {
	if path == "" {
		return
	}
	if err := m.portraits.Remove(path); err != nil {
		m.logger.Warn("could not remove portrait", zap.String("path", path), zap.Error(err))
	}
}
