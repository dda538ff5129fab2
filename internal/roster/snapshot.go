package roster

import (
	"encoding/json"
	"slices"

	"github.com/roach88/rollforge/internal/character"
)

// Quarantined is a stored entry that could not be decoded or validated.
// It is carried verbatim so that saving never drops it. ID is the entry's
// id when one could be read; it is held back from new records but not
// retired, so the entry can be admitted again by a later load.
type Quarantined struct {
	ID     string          `json:"id,omitempty"`
	Reason string          `json:"reason"`
	Entry  json.RawMessage `json:"entry"`
}

// Snapshot is the state exchanged with the persistence layer.
type Snapshot struct {
	NextSeq     int64
	Records     []*character.Record // creation order
	Retired     []string            // sorted
	Quarantined []Quarantined
}

// Empty reports whether s holds nothing worth writing.
func (s *Snapshot) Empty() bool {
	return len(s.Records) == 0 && len(s.Retired) == 0 && len(s.Quarantined) == 0
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		NextSeq:     s.NextSeq,
		Records:     make([]*character.Record, len(s.Records)),
		Retired:     slices.Clone(s.Retired),
		Quarantined: make([]Quarantined, len(s.Quarantined)),
	}
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	for i, q := range s.Quarantined {
		out.Quarantined[i] = Quarantined{ID: q.ID, Reason: q.Reason, Entry: slices.Clone(q.Entry)}
	}
	return out
}
