package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/roster"
)

const (
	// DocumentFormat tags a roster document.
	DocumentFormat = "rollforge.roster"

	// SchemaVersion is the document version this build writes.
	// Version 1 is the untagged legacy layout: an object keyed by id.
	SchemaVersion = 2
)

type document struct {
	Format        string               `json:"format"`
	SchemaVersion int                  `json:"schema_version"`
	NextSeq       int64                `json:"next_seq"`
	RetiredIDs    []string             `json:"retired_ids"`
	Characters    []json.RawMessage    `json:"characters"`
	Quarantined   []roster.Quarantined `json:"quarantined"`
}

// legacyEntry is one character in a version 1 file.
type legacyEntry struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	CharacterClass string         `json:"character_class"`
	Proficiencies  []string       `json:"proficiencies"`
	ImagePath      *string        `json:"image_path"`
	Stats          map[string]int `json:"stats"`
	Modifiers      map[string]int `json:"modifiers"` // derived; ignored
}

// parsed is a decoded document before validation.
type parsed struct {
	version     int
	nextSeq     int64
	retired     []string
	quarantined []roster.Quarantined
	entries     []entry
}

// parseDocument decodes data of any supported version. defaultClass fills
// legacy entries without a class; stamp is used as their timestamps.
func parseDocument(data []byte, defaultClass string, stamp time.Time) (*parsed, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errCorrupt("file is empty")
	}
	if !json.Valid(data) {
		var v any
		err := json.Unmarshal(data, &v)
		return nil, &CorruptDataError{Err: err}
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, errCorrupt("top level is not an object")
	}

	rawVersion, tagged := top["schema_version"]
	if !tagged {
		if _, hasFormat := top["format"]; hasFormat {
			return nil, &SchemaError{Message: "document has a format tag but no schema_version"}
		}
		return parseLegacy(data, defaultClass, stamp)
	}

	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return nil, &SchemaError{Message: fmt.Sprintf("schema_version is not an integer: %s", rawVersion)}
	}
	var format string
	_ = json.Unmarshal(top["format"], &format)
	if format != DocumentFormat {
		return nil, &SchemaError{Format: format, Version: version, Message: fmt.Sprintf("unknown document format %q", format)}
	}
	if version != SchemaVersion {
		return nil, &SchemaError{Format: format, Version: version, Supported: SchemaVersion}
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, &CorruptDataError{Err: err}
	}

	p := &parsed{
		version:     version,
		nextSeq:     doc.NextSeq,
		retired:     doc.RetiredIDs,
		quarantined: doc.Quarantined,
		entries:     make([]entry, len(doc.Characters)),
	}
	for i, raw := range doc.Characters {
		p.entries[i] = decodeWireEntry(raw)
	}
	return p, nil
}

// decodeWireEntry strictly decodes one stored record.
func decodeWireEntry(raw json.RawMessage) entry {
	e := entry{raw: raw}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e.wire); err != nil {
		e.err = fmt.Errorf("decode character: %w", err)
	}
	return e
}

// parseLegacy migrates a version 1 file in memory. Key order in the file is
// the creation order.
func parseLegacy(data []byte, defaultClass string, stamp time.Time) (*parsed, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, &CorruptDataError{Err: err}
	}
	p := &parsed{version: 1}
	stamp = stamp.UTC().Round(0)
	characters := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &CorruptDataError{Err: err}
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, &CorruptDataError{Err: err}
		}
		if looksLegacy(raw) {
			characters++
		}
		p.entries = append(p.entries, migrateLegacy(key, raw, int64(len(p.entries)+1), defaultClass, stamp))
	}
	if len(p.entries) > 0 && characters == 0 {
		return nil, &SchemaError{Message: "untagged object holds no characters; not a roster document"}
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, &CorruptDataError{Err: err}
	}
	p.nextSeq = int64(len(p.entries)) + 1
	return p, nil
}

// looksLegacy reports whether raw is an object with the fields every
// version 1 character carried.
func looksLegacy(raw json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return false
	}
	_, name := fields["name"]
	_, stats := fields["stats"]
	return name || stats
}

func migrateLegacy(key string, raw json.RawMessage, seq int64, defaultClass string, stamp time.Time) entry {
	e := entry{raw: raw}
	var le legacyEntry
	if err := json.Unmarshal(raw, &le); err != nil {
		e.err = fmt.Errorf("decode legacy character %q: %w", key, err)
		return e
	}
	id := le.ID
	if id == "" {
		id = key
	}
	class := le.CharacterClass
	if class == "" {
		class = defaultClass
	}
	w := character.Wire{
		ID:            id,
		Seq:           seq,
		Name:          le.Name,
		Class:         class,
		Level:         1,
		Scores:        le.Stats,
		Proficiencies: le.Proficiencies,
		CreatedAt:     &stamp,
		UpdatedAt:     &stamp,
	}
	if le.ImagePath != nil {
		w.Portrait = *le.ImagePath
	}
	e.wire = w
	return e
}

// encodeDocument renders snap as the current document version.
func encodeDocument(snap *roster.Snapshot) ([]byte, error) {
	doc := document{
		Format:        DocumentFormat,
		SchemaVersion: SchemaVersion,
		NextSeq:       snap.NextSeq,
		RetiredIDs:    append([]string{}, snap.Retired...),
		Characters:    make([]json.RawMessage, 0, len(snap.Records)),
		Quarantined:   append([]roster.Quarantined{}, snap.Quarantined...),
	}
	for _, rec := range snap.Records {
		raw, err := marshalJSON(character.ToWire(rec))
		if err != nil {
			return nil, fmt.Errorf("encode character %s: %w", rec.ID, err)
		}
		doc.Characters = append(doc.Characters, raw)
	}
	return marshalJSON(doc, "  ")
}

// marshalJSON encodes without HTML escaping so names stay readable on disk.
func marshalJSON(v any, indent ...string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if len(indent) > 0 {
		enc.SetIndent("", indent[0])
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func errCorrupt(msg string) *CorruptDataError {
	return &CorruptDataError{Err: errors.New(msg)}
}
