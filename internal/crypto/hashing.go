package crypto

import "golang.org/x/crypto/bcrypt"

// CompareHashAndPassword checks a plaintext password against the stored
// bcrypt hash of a local account.
func CompareHashAndPassword(hashed, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
}

// HashPassword hashes a password for the local account store. bcrypt
// caps input at 72 bytes; the useradd validation enforces that bound.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	return string(hashed), err
}
