// Package digest computes the content hash that identifies a job.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// FromBytes returns the hex SHA-256 digest of raw upload bytes. Identical
// bytes always produce the same digest regardless of filename.
func FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
