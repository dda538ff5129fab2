package roster

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/rules"
)

// maxIDAttempts bounds how often a colliding generator is retried.
const maxIDAttempts = 16

// Flusher writes a snapshot to durable storage.
type Flusher interface {
	Save(ctx context.Context, snap *Snapshot) error
}

// Roster holds the characters of one session in creation order.
//
// Thread-safety: all methods are safe for concurrent use.
type Roster struct {
	mu sync.Mutex

	rules   *rules.Ruleset
	ids     IDGenerator
	clock   *Clock
	now     func() time.Time
	flusher Flusher
	auto    bool
	logger  *zap.Logger

	order       []string
	byID        map[string]*character.Record
	retired     map[string]struct{}
	quarantined []Quarantined
	held        map[string]struct{} // ids of quarantined entries
	dirty       bool
}

// Option configures a Roster.
type Option func(*Roster)

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Roster) { r.ids = g }
}

// WithNow replaces the wall clock used for record timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Roster) { r.now = now }
}

// WithFlusher sets the persistence target. With autosave on, every
// mutation is flushed before it returns.
func WithFlusher(f Flusher, autosave bool) Option {
	return func(r *Roster) {
		r.flusher = f
		r.auto = autosave
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Roster) { r.logger = l }
}

// New creates an empty roster validating against rs.
func New(rs *rules.Ruleset, opts ...Option) *Roster {
	r := &Roster{
		rules:   rs,
		ids:     UUIDv7Generator{},
		clock:   NewClockAt(0),
		now:     time.Now,
		logger:  zap.NewNop(),
		byID:    make(map[string]*character.Record),
		retired: make(map[string]struct{}),
		held:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns the ruleset records are validated against.
func (r *Roster) Rules() *rules.Ruleset {
	return r.rules
}

// Create validates d, assigns a fresh id and appends the record.
func (r *Roster) Create(ctx context.Context, d character.Draft) (*character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := character.Validate(r.rules, d); err != nil {
		return nil, err
	}
	rec, err := r.insertLocked(d)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("character created", zap.String("id", rec.ID), zap.Int64("seq", rec.Seq))
	return rec.Clone(), r.autoFlushLocked(ctx)
}

// Import adds a record from a foreign source. The source id, if any, is
// never trusted: a fresh id is always assigned.
func (r *Roster) Import(ctx context.Context, d character.Draft) (*character.Record, error) {
	return r.Create(ctx, d)
}

// ImportAll adds every draft or none. All drafts are validated before any is
// inserted, and the roster is flushed once.
func (r *Roster) ImportAll(ctx context.Context, drafts []character.Draft) ([]*character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ve := &character.ValidationError{}
	for i, d := range drafts {
		if err := character.Validate(r.rules, d); err != nil {
			ve.Merge(fmt.Sprintf("characters[%d]", i), err.(*character.ValidationError))
		}
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	out := make([]*character.Record, 0, len(drafts))
	for _, d := range drafts {
		rec, err := r.insertLocked(d)
		if err != nil {
			r.rollbackLocked(out)
			return nil, err
		}
		out = append(out, rec.Clone())
	}
	r.logger.Debug("characters imported", zap.Int("count", len(out)))
	return out, r.autoFlushLocked(ctx)
}

// Update replaces the content of id with d. Identity, creation time and
// position are kept.
func (r *Roster) Update(ctx context.Context, id string, d character.Draft) (*character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	next, err := cur.Replace(r.rules, d, r.now())
	if err != nil {
		return nil, err
	}
	r.byID[id] = next
	r.dirty = true
	r.logger.Debug("character updated", zap.String("id", id))
	return next.Clone(), r.autoFlushLocked(ctx)
}

// Patch applies the changed fields in p to id.
func (r *Roster) Patch(ctx context.Context, id string, p character.Patch) (*character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if p.IsEmpty() {
		return cur.Clone(), nil
	}
	next, err := cur.WithOverrides(r.rules, p, r.now())
	if err != nil {
		return nil, err
	}
	r.byID[id] = next
	r.dirty = true
	r.logger.Debug("character patched", zap.String("id", id))
	return next.Clone(), r.autoFlushLocked(ctx)
}

// Delete removes id and retires it. The removed record is returned so the
// caller can release resources it references.
func (r *Roster) Delete(ctx context.Context, id string) (*character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.retired[id] = struct{}{}
	r.dirty = true
	r.logger.Debug("character deleted", zap.String("id", id))
	return cur, r.autoFlushLocked(ctx)
}

// Get returns a copy of the record with id.
func (r *Roster) Get(id string) (*character.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return cur.Clone(), nil
}

// List returns copies of all records in creation order.
func (r *Roster) List() []*character.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*character.Record, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id].Clone()
	}
	return out
}

// Len returns the number of records.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Dirty reports whether there are changes not yet flushed.
func (r *Roster) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Quarantined returns the stored entries that could not be loaded.
func (r *Roster) Quarantined() []Quarantined {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.quarantined)
}

// Flush writes the current state regardless of the autosave setting.
func (r *Roster) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

// Snapshot returns a deep copy of the roster state.
func (r *Roster) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Restore replaces the roster state with snap. Restoring validates that ids
// are unique and not retired.
func (r *Roster) Restore(snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make(map[string]*character.Record, len(snap.Records))
	order := make([]string, 0, len(snap.Records))
	retired := make(map[string]struct{}, len(snap.Retired))
	for _, id := range snap.Retired {
		retired[id] = struct{}{}
	}
	last := max(snap.NextSeq-1, 0)
	for _, rec := range snap.Records {
		if _, dup := byID[rec.ID]; dup {
			return fmt.Errorf("restore: duplicate id %q", rec.ID)
		}
		if _, gone := retired[rec.ID]; gone {
			return fmt.Errorf("restore: id %q is both live and retired", rec.ID)
		}
		byID[rec.ID] = rec.Clone()
		order = append(order, rec.ID)
		last = max(last, rec.Seq)
	}

	r.byID = byID
	r.order = order
	r.retired = retired
	r.quarantined = slices.Clone(snap.Quarantined)
	r.held = make(map[string]struct{}, len(snap.Quarantined))
	for _, q := range snap.Quarantined {
		if q.ID != "" {
			r.held[q.ID] = struct{}{}
		}
	}
	r.clock = NewClockAt(last)
	r.dirty = false
	return nil
}

func (r *Roster) insertLocked(d character.Draft) (*character.Record, error) {
	id, err := r.freshIDLocked()
	if err != nil {
		return nil, err
	}
	rec, err := character.New(r.rules, id, r.clock.Next(), d, r.now())
	if err != nil {
		return nil, err
	}
	r.byID[id] = rec
	r.order = append(r.order, id)
	r.dirty = true
	return rec, nil
}

// rollbackLocked removes records inserted by a failed batch. Their ids are
// retired anyway since they were issued.
func (r *Roster) rollbackLocked(recs []*character.Record) {
	for _, rec := range recs {
		delete(r.byID, rec.ID)
		r.retired[rec.ID] = struct{}{}
	}
	r.order = slices.DeleteFunc(r.order, func(id string) bool {
		_, ok := r.byID[id]
		return !ok
	})
}

func (r *Roster) freshIDLocked() (string, error) {
	for range maxIDAttempts {
		id := r.ids.Generate()
		if id == "" {
			continue
		}
		if _, live := r.byID[id]; live {
			continue
		}
		if _, gone := r.retired[id]; gone {
			continue
		}
		if _, held := r.held[id]; held {
			continue
		}
		return id, nil
	}
	return "", ErrIDExhausted
}

func (r *Roster) autoFlushLocked(ctx context.Context) error {
	if !r.auto {
		return nil
	}
	return r.flushLocked(ctx)
}

func (r *Roster) flushLocked(ctx context.Context) error {
	if r.flusher == nil {
		return nil
	}
	if err := r.flusher.Save(ctx, r.snapshotLocked()); err != nil {
		r.logger.Warn("flush failed, keeping changes in memory", zap.Error(err))
		return &FlushError{Err: err}
	}
	r.dirty = false
	return nil
}

func (r *Roster) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		NextSeq:     r.clock.Current() + 1,
		Records:     make([]*character.Record, len(r.order)),
		Retired:     make([]string, 0, len(r.retired)),
		Quarantined: make([]Quarantined, len(r.quarantined)),
	}
	for i, id := range r.order {
		snap.Records[i] = r.byID[id].Clone()
	}
	for id := range r.retired {
		snap.Retired = append(snap.Retired, id)
	}
	slices.Sort(snap.Retired)
	for i, q := range r.quarantined {
		snap.Quarantined[i] = Quarantined{ID: q.ID, Reason: q.Reason, Entry: slices.Clone(q.Entry)}
	}
	return snap
}
