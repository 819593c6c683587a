package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates a hex string from size cryptographically random
// bytes. The resulting string is twice as long as size, since each byte
// expands to two hex characters.
//
// It returns an error only if the system random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
