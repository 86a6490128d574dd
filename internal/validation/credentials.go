package validation

import (
	"errors"
	"regexp"
)

var validCharsUsername = regexp.MustCompile(`^[A-Za-z\d@$!%*?&.-]+$`)
var validCharsPassword = regexp.MustCompile(`^[A-Za-z\d@$!%*?&#.-]+$`)

// ValidateUsername checks an account name before it enters the local
// credential store. Returns user-friendly errors.
func ValidateUsername(username string) error {
	if len(username) == 0 {
		return errors.New("empty username")
	}
	if len(username) > 64 {
		return errors.New("username too long. Must be 64 characters or less")
	}
	if valid := validCharsUsername.MatchString(username); !valid {
		return errors.New("invalid character(s) detected. only normal characters, numbers, and some symbols allowed")
	}
	return nil
}

// ValidatePassword checks a plaintext password before hashing.
func ValidatePassword(password string) error {
	if len(password) == 0 {
		return errors.New("empty password")
	}
	if len(password) > 72 {
		return errors.New("password too long. Must be 72 characters or less")
	}
	if valid := validCharsPassword.MatchString(password); !valid {
		return errors.New("invalid character(s) detected. only normal characters, numbers, and some symbols allowed")
	}
	return nil
}
