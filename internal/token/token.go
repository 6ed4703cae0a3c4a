// Package token issues and verifies capability tokens: signed,
// time-scoped credentials that grant specific media permissions for
// one room of one tenant.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sugunalabs/callserver/internal/domain"
)

var (
	ErrInvalidToken   = errors.New("token: invalid or expired")
	ErrRoomMismatch   = errors.New("token: not valid for this room")
	ErrTenantMismatch = errors.New("token: not valid for this tenant")
)

// Claims is the signed claim set. Grants are derived from the role at
// issue time, never trusted from the caller.
type Claims struct {
	RoomID   string        `json:"room_id,omitempty"`
	Identity string        `json:"user_id"`
	AppID    string        `json:"app_id"`
	Role     domain.Role   `json:"role"`
	Grants   domain.Grants `json:"grants"`
	jwt.RegisteredClaims
}

// Issue signs a capability token under the tenant's signing key.
func Issue(signingKey []byte, appID domain.AppID, roomID domain.RoomID, id domain.Identity, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RoomID:   string(roomID),
		Identity: string(id),
		AppID:    string(appID),
		Role:     role,
		Grants:   domain.GrantsFor(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

// Verify parses and validates a token. It fails closed: a missing
// token, a bad signature, an unexpected signing method, expiry, or a
// room/tenant mismatch all reject. expectedRoom may be empty for
// tokens not scoped to a room (signaling-channel auth).
func Verify(signingKey []byte, tokenString string, expectedRoom domain.RoomID, expectedApp domain.AppID) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AppID != string(expectedApp) {
		return nil, ErrTenantMismatch
	}
	if expectedRoom != "" && claims.RoomID != string(expectedRoom) {
		return nil, ErrRoomMismatch
	}
	return claims, nil
}
