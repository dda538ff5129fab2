package persist

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/roster"
	"github.com/roach88/rollforge/internal/rules"
)

// entry is one stored character before validation. raw is what gets
// quarantined if the entry is rejected.
type entry struct {
	raw  json.RawMessage
	wire character.Wire
	err  error
	id   string // known id when raw may not reveal it
}

// assemble validates entries into a snapshot. Rejected entries are
// quarantined under their id, which is held back from new records but not
// retired. Entries quarantined by an earlier load are retried after the
// stored characters, so a change of ruleset can admit them again.
func assemble(rs *rules.Ruleset, logger *zap.Logger, source string, nextSeq int64,
	retired []string, quarantined []roster.Quarantined, entries []entry) *roster.Snapshot {

	snap := &roster.Snapshot{
		Records:     make([]*character.Record, 0, len(entries)),
		Quarantined: make([]roster.Quarantined, 0, len(quarantined)),
		Retired:     slices.Clone(retired),
	}
	if snap.Retired == nil {
		snap.Retired = []string{}
	}
	slices.Sort(snap.Retired)
	snap.Retired = slices.Compact(snap.Retired)
	live := make(map[string]struct{}, len(entries))

	quarantine := func(id string, raw json.RawMessage, err error) {
		snap.Quarantined = append(snap.Quarantined, roster.Quarantined{
			ID:     id,
			Reason: err.Error(),
			Entry:  compact(raw),
		})
	}
	// admit returns why w cannot join the roster, or nil once it has.
	admit := func(w character.Wire) error {
		id := w.ID
		if id == "" {
			return errors.New("entry has no id")
		}
		if _, dup := live[id]; dup {
			return fmt.Errorf("duplicate id %q", id)
		}
		if _, gone := slices.BinarySearch(snap.Retired, id); gone {
			return fmt.Errorf("id %q was retired", id)
		}
		rec, err := character.FromWire(rs, w)
		if err != nil {
			return err
		}
		live[id] = struct{}{}
		snap.Records = append(snap.Records, rec)
		return nil
	}

	for i, e := range entries {
		err := e.err
		id := e.id
		raw := e.raw
		if err == nil {
			id = e.wire.ID
			err = admit(e.wire)
			if err != nil {
				// Keep the decoded form so a later load can decode it strictly.
				if b, merr := marshalJSON(e.wire); merr == nil {
					raw = b
				}
			}
		} else if id == "" {
			id = looseID(raw)
		}
		if err == nil {
			continue
		}
		logger.Warn("quarantining stored character",
			zap.String("source", source),
			zap.Int("index", i),
			zap.String("id", id),
			zap.Error(err),
		)
		quarantine(id, raw, err)
	}

	for _, q := range quarantined {
		e := decodeWireEntry(q.Entry)
		if e.err != nil {
			id := q.ID
			if id == "" {
				id = looseID(q.Entry)
			}
			snap.Quarantined = append(snap.Quarantined, roster.Quarantined{ID: id, Reason: q.Reason, Entry: compact(q.Entry)})
			continue
		}
		if err := admit(e.wire); err != nil {
			quarantine(e.wire.ID, q.Entry, err)
			continue
		}
		logger.Info("quarantined character admitted",
			zap.String("source", source),
			zap.String("id", e.wire.ID),
		)
	}

	// Entries written without a sequence number go after everything else,
	// in stored order.
	last := max(nextSeq-1, 0)
	for _, rec := range snap.Records {
		last = max(last, rec.Seq)
	}
	for _, rec := range snap.Records {
		if rec.Seq <= 0 {
			last++
			rec.Seq = last
		}
	}
	snap.NextSeq = last + 1
	slices.SortStableFunc(snap.Records, func(a, b *character.Record) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return snap
}

// looseID extracts an id from an entry that failed strict decoding.
func looseID(raw json.RawMessage) string {
	var loose struct {
		ID any `json:"id"`
	}
	if json.Unmarshal(raw, &loose) != nil {
		return ""
	}
	if s, ok := loose.ID.(string); ok {
		return s
	}
	return ""
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		// Not JSON at all; keep it as a string so the document stays valid.
		s, _ := json.Marshal(string(raw))
		return s
	}
	return buf.Bytes()
}
