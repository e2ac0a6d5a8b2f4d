// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// SaltLen is the length of per-account salts.
const SaltLen = 16

// Argon2id holds the hashing cost parameters.
type Argon2id struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// Default is tuned for server-side hashing (64 MB, 3 passes).
var Default = Argon2id{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewSalt returns a fresh random salt of SaltLen bytes.
func NewSalt() ([]byte, error) { return RandBytes(SaltLen) }

// Hash derives the Argon2id key of password with salt.
func (p Argon2id) Hash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// Verify compares password against an expected hash in constant time.
func (p Argon2id) Verify(password string, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(p.Hash(password, salt), expected) == 1
}
