package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/avezhov/passport/internal/common"
)

// resetTokenBytes is the entropy of the raw reset token (256 bits).
const resetTokenBytes = 32

// ResetTokenValidity is the absolute lifetime of a password-reset token.
const ResetTokenValidity = 10 * time.Minute

// ResetToken is a freshly issued one-time reset secret. Raw is sent to the
// user exactly once (inside the reset link); only Hash and ExpiresAt are ever
// persisted.
type ResetToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// NewResetToken issues a random reset token expiring ResetTokenValidity
// after now.
func NewResetToken(now time.Time) (*ResetToken, error) {
	raw, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		return nil, err
	}
	return &ResetToken{
		Raw:       raw,
		Hash:      HashResetToken(raw),
		ExpiresAt: now.Add(ResetTokenValidity),
	}, nil
}

// HashResetToken returns the deterministic storable form of a raw reset
// token: hex-encoded SHA-256.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MatchResetToken reports whether the presented raw token corresponds to the
// stored hash and the stored expiry has not passed as of now. It does not
// clear the stored fields; the caller pairs clearing with either a password
// update or an explicit abandonment.
func MatchResetToken(raw, storedHash string, storedExpiry, now time.Time) bool {
	if !now.Before(storedExpiry) {
		return false
	}
	candidate := HashResetToken(raw)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
