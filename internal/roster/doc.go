// Package roster is the in-memory collection of characters for a session.
//
// A Roster owns id assignment and creation order. Every mutation is flushed
// through a Flusher when autosave is on; memory stays the source of truth if
// the flush fails.
package roster
