// Package app is the only surface the presentation layer calls.
//
// A Manager owns one roster, its persistence backend and the portrait
// directory. Front ends never reach the backend directly.
package app
