package auth

import (
	"time"

	"github.com/avezhov/passport/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Session is the identity assertion carried by a verified session token.
type Session struct {
	UserID   string
	IssuedAt time.Time
}

// GenerateSessionToken mints an HS256-signed bearer token for userID, issued
// at now and valid for validityDuration.
func GenerateSessionToken(userID string, secretKey []byte, validityDuration time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseSessionToken verifies the signature and expiry of tokenString as of
// now and returns the embedded session. Malformed, tampered, and expired
// tokens all fail with common.ErrorInvalidToken.
func ParseSessionToken(tokenString string, secretKey []byte, now time.Time) (*Session, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, common.ErrorInvalidToken
	}
	if !token.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, common.ErrorInvalidToken
	}

	return &Session{
		UserID:   claims.Subject,
		IssuedAt: claims.IssuedAt.Time,
	}, nil
}
