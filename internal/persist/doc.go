// Package persist saves and loads a roster snapshot.
//
// Two backends share the same record serialisation (character.Wire):
//
//   - JSONFile writes one versioned document, replaced atomically on save.
//   - SQLite keeps the same payloads in a go-sqlite3 database with WAL.
//
// Loading never drops data: entries that cannot be decoded are quarantined
// and written back verbatim, and a file that cannot be read at all is never
// overwritten until the caller has moved it aside.
package persist
