// Package secrets generates and verifies the service keys automated callers
// (retention schedulers, monitoring probes) present to the API. Only the
// bcrypt hash of a key is ever stored in configuration.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "batisecure/pkg/domain-errors"
)

// keyBytes is the entropy of a generated key before encoding.
const keyBytes = 32

// Generate creates a random service key, base64url-encoded without padding
// so it is safe in env files and HTTP headers.
func Generate() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate service key")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash produces the bcrypt hash to store in place of the key itself.
func Hash(key string) (string, error) {
	if key == "" {
		return "", dErrors.New(dErrors.CodeValidation, "service key cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "service key is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash service key")
	}
	return string(hashed), nil
}

// Verify compares a presented key against the stored hash. A mismatch comes
// back as an unauthorized domain error so transports map it to 401 directly.
func Verify(key, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid service key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify service key")
	}
	return nil
}
