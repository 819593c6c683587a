// Package auth implements the cryptographic primitives of the authentication
// core: password hashing, signed session tokens, and password-reset tokens.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades hashing time for brute-force resistance. Changing it only
// affects newly written hashes; verification reads the cost from the hash.
const bcryptCost = 12

// HashPassword returns a bcrypt hash of the plaintext. The hash embeds a
// random salt, so hashing the same plaintext twice yields different outputs.
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
}

// CheckPassword reports whether plaintext matches the stored bcrypt hash.
// The comparison is constant time with respect to the secret.
func CheckPassword(plaintext string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}
