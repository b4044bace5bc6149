// Package checksum fingerprints document text so a writer can recognise the
// echo of its own write when the file watcher reports it back.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum for document text held as a string.
func String(text string) string {
	return Sum([]byte(text))
}
