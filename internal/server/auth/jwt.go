// Package auth mints and parses session tickets: short signed tokens
// that let the HTTP adapter authenticate requests without a store read
// on every call. The ticket is a convenience cache of the session id;
// the session row in the store stays authoritative for revocation.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/passlink/passlink/internal/common"
)

// Claims carries the session identity inside the signed ticket.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string
	SessionID string
}

// GenerateTicket signs a ticket for the session with HS256.
func GenerateTicket(userID, sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:    userID,
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseTicket verifies the signature and expiry and returns the carried
// identity. An expired ticket maps to common.ErrSessionExpired so the
// adapter can tell the client to re-authenticate.
func ParseTicket(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrSessionExpired
		}
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrSessionExpired
	}

	return claims, nil
}
