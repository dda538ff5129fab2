// Package canon produces canonical JSON and content digests for records that
// leave the application (portable exports).
//
// Canonical form follows RFC 8785: object keys sorted by UTF-16 code units,
// no insignificant whitespace, minimal string escaping. Strings are NFC
// normalised so visually identical names hash identically. Floats and null are
// forbidden; every number in a character record is an integer.
package canon
