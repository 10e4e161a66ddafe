package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the registered JWT claims plus what the RBAC middleware needs
// to decide without touching the database.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsOwner  bool   `json:"is_owner"`
	Kind     string `json:"kind"`
}

// Subject identifies the user a token is issued for.
type Subject struct {
	UserID   string
	Username string
	Role     string
	IsOwner  bool
}

// Generate signs an HS256 token of the given kind valid for ttl.
func Generate(secret []byte, issuer, kind string, sub Subject, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("jwt: empty secret")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   sub.UserID,
		Username: sub.Username,
		Role:     sub.Role,
		IsOwner:  sub.IsOwner,
		Kind:     kind,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Parse validates signature, expiry and kind, returning the claims.
func Parse(secret []byte, tokenString, kind string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt: empty secret")
	}
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if kind != "" && claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, kind)
	}
	return claims, nil
}
