package launch

import (
	"crypto/sha256"
	"encoding/hex"
)

// CodeDigest returns the hex SHA-256 digest code packages are addressed and
// verified by.
func CodeDigest(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
