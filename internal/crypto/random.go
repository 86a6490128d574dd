// Package crypto generates session tokens and hashes local credentials.
package crypto

import (
	"crypto/rand"
	"math/big"
)

// ResourceIDLength is the digit count of a session-scoped resource id.
const ResourceIDLength = 32

// NewResourceID creates the random token distinguishing one of a user's
// concurrent sessions. 32 base-10 digits make collisions negligible, but
// the session manager still checks before admitting a connection.
func NewResourceID() string {
	return secureRandomString("0123456789", ResourceIDLength)
}

func secureRandomString(charset string, length int) string {
	result := make([]byte, length)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		result[i] = charset[n.Int64()]
	}
	return string(result)
}
