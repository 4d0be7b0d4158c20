package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// MinSecretLen is the minimum HMAC key length accepted for signing.
const MinSecretLen = 32

// ErrWeakSecret is returned when a signing key is too short.
var ErrWeakSecret = errors.New("auth: secret too short")

// ValidateSecret rejects keys shorter than MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return fmt.Errorf("%w: %d bytes, need %d", ErrWeakSecret, len(secret), MinSecretLen)
	}
	return nil
}

// DeriveSecret stretches a passphrase of any length into a 32-byte key.
// An empty passphrase yields nil so callers can fall back to a random key.
func DeriveSecret(passphrase string) []byte {
	if passphrase == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}
