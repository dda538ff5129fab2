package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep digests of different document kinds apart.
// The version suffix allows a future algorithm change.
const (
	DomainCharacter = "rollforge/character/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the hex SHA-256 of v's canonical JSON under domain.
// v may be a struct; it is converted with FromStruct first.
func Digest(domain string, v any) (string, error) {
	generic, err := FromStruct(v)
	if err != nil {
		return "", err
	}
	data, err := Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canon: %w", err)
	}
	return hashWithDomain(domain, data), nil
}
