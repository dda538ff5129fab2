// Package portable converts characters to and from self-describing files
// that can be moved between rosters.
//
// Exported documents never carry store identity: importing always yields
// drafts, and the receiving roster assigns fresh ids.
package portable
