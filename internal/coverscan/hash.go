package coverscan

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes computes the SHA-256 hex digest of data
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
