package portable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rollforge/internal/canon"
	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/rules"
)

const (
	FormatCharacter = "rollforge.character"
	FormatBundle    = "rollforge.bundle"

	// Version is the export layout version this build writes and reads.
	Version = 1
)

// Encoding selects the serialisation of an export.
type Encoding string

const (
	JSON Encoding = "json"
	YAML Encoding = "yaml"
)

// ParseEncoding maps a flag value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case JSON, "":
		return JSON, nil
	case YAML, "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown encoding %q (want json or yaml)", s)
	}
}

// Document is a single-character or bundle export.
type Document struct {
	Format     string          `json:"format" yaml:"format"`
	Version    int             `json:"version" yaml:"version"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Character  *character.Wire `json:"character,omitempty" yaml:"character,omitempty"`
	Digest     string          `json:"digest,omitempty" yaml:"digest,omitempty"`
	Characters []Entry         `json:"characters,omitempty" yaml:"characters,omitempty"`
}

// Entry is one character in a bundle.
type Entry struct {
	Character character.Wire `json:"character" yaml:"character"`
	Digest    string         `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// ExportRecord renders one character as a portable document.
func ExportRecord(r *character.Record, enc Encoding, now time.Time) ([]byte, error) {
	w, digest, err := portableWire(r)
	if err != nil {
		return nil, err
	}
	return encode(Document{
		Format:     FormatCharacter,
		Version:    Version,
		ExportedAt: stamp(now),
		Character:  &w,
		Digest:     digest,
	}, enc)
}

// ExportBundle renders several characters, in the given order, as one
// portable document.
func ExportBundle(recs []*character.Record, enc Encoding, now time.Time) ([]byte, error) {
	doc := Document{
		Format:     FormatBundle,
		Version:    Version,
		ExportedAt: stamp(now),
		Characters: make([]Entry, 0, len(recs)),
	}
	for _, r := range recs {
		w, digest, err := portableWire(r)
		if err != nil {
			return nil, err
		}
		doc.Characters = append(doc.Characters, Entry{Character: w, Digest: digest})
	}
	return encode(doc, enc)
}

// Import decodes either document kind and returns validated drafts in file
// order. Any problem rejects the whole file.
func Import(rs *rules.Ruleset, data []byte) ([]character.Draft, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	if doc.Version != Version {
		return nil, formatErrorf(nil, "unsupported version %d (this build reads %d)", doc.Version, Version)
	}

	switch doc.Format {
	case FormatCharacter:
		if doc.Character == nil {
			return nil, formatErrorf(nil, "character document has no character")
		}
		if len(doc.Characters) > 0 {
			return nil, formatErrorf(nil, "character document must not contain a characters list")
		}
		d, err := verify(rs, *doc.Character, doc.Digest)
		if err != nil {
			return nil, err
		}
		return []character.Draft{d}, nil

	case FormatBundle:
		if doc.Character != nil || doc.Digest != "" {
			return nil, formatErrorf(nil, "bundle must list characters under \"characters\"")
		}
		drafts := make([]character.Draft, 0, len(doc.Characters))
		for i, e := range doc.Characters {
			d, err := verify(rs, e.Character, e.Digest)
			if err != nil {
				return nil, formatErrorf(err, "characters[%d]", i)
			}
			drafts = append(drafts, d)
		}
		return drafts, nil

	case "":
		return nil, formatErrorf(nil, "missing format tag")
	default:
		return nil, formatErrorf(nil, "unknown format %q", doc.Format)
	}
}

// ImportRecord decodes a file that must hold exactly one character.
func ImportRecord(rs *rules.Ruleset, data []byte) (character.Draft, error) {
	drafts, err := Import(rs, data)
	if err != nil {
		return character.Draft{}, err
	}
	if len(drafts) != 1 {
		return character.Draft{}, formatErrorf(nil, "expected one character, file holds %d", len(drafts))
	}
	return drafts[0], nil
}

func portableWire(r *character.Record) (character.Wire, string, error) {
	w := character.ToWire(r).Portable()
	digest, err := canon.Digest(canon.DomainCharacter, w)
	if err != nil {
		return character.Wire{}, "", fmt.Errorf("digest character %s: %w", r.ID, err)
	}
	return w, digest, nil
}

// verify checks the digest, when present, and validates the content.
func verify(rs *rules.Ruleset, w character.Wire, digest string) (character.Draft, error) {
	w = w.Portable()
	if digest != "" {
		got, err := canon.Digest(canon.DomainCharacter, w)
		if err != nil {
			return character.Draft{}, formatErrorf(err, "character cannot be digested")
		}
		if got != digest {
			return character.Draft{}, formatErrorf(nil, "digest mismatch: file was modified after export")
		}
	}
	d := w.Draft()
	if err := character.Validate(rs, d); err != nil {
		return character.Draft{}, formatErrorf(err, "character %q is invalid", w.Name)
	}
	return d, nil
}

func encode(doc Document, enc Encoding) ([]byte, error) {
	switch enc {
	case JSON, "":
		var buf bytes.Buffer
		e := json.NewEncoder(&buf)
		e.SetEscapeHTML(false)
		e.SetIndent("", "  ")
		if err := e.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		return buf.Bytes(), nil
	case YAML:
		var buf bytes.Buffer
		e := yaml.NewEncoder(&buf)
		e.SetIndent(2)
		if err := e.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		if err := e.Close(); err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// decode reads JSON when the content starts with '{', YAML otherwise.
// Unknown fields are rejected in both.
func decode(data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, formatErrorf(nil, "file is empty")
	}

	var doc Document
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, formatErrorf(err, "malformed JSON")
		}
		if dec.More() {
			return nil, formatErrorf(nil, "trailing data after JSON document")
		}
		return &doc, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(trimmed))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, formatErrorf(err, "malformed YAML")
	}
	return &doc, nil
}

func stamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Second)
}
