package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken returns SHA256 hex of the raw token. Only the hash is
// ever persisted.
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
