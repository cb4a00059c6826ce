// Package security issues and validates admin session tokens.
package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// AdminClaims carries the admin identity inside a session token.
type AdminClaims struct {
	AdminID  uint64 `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SignAdminToken issues a signed session token for an admin.
func SignAdminToken(secret string, expiry time.Duration, adminID uint64, username string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret is not configured")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	now := time.Now()
	claims := AdminClaims{
		AdminID:  adminID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("sign token: %w", errSign)
	}
	return signed, nil
}

// ParseAdminToken validates a session token and returns its claims.
func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AdminID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
