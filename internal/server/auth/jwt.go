// Package auth mints and verifies the gateway's session tokens.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session token payload. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
	Name     string
	Email    string
}

// IsAdmin reports whether the bearer holds the privileged role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// GenerateToken signs a token for id that expires validity after now.
func GenerateToken(id Identity, secretKey []byte, now time.Time, validityDuration time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(validityDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID: id.TenantID,
		Role:     id.Role,
		Name:     id.Name,
		Email:    id.Email,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ParseToken fully verifies tokenString (signature and expiry).
func ParseToken(tokenString string, secretKey []byte) (Identity, error) {
	return parse(tokenString, secretKey)
}

// ParseTokenIgnoringExpiry verifies the signature and structure but accepts
// expired tokens. Only the refresh grant uses it.
func ParseTokenIgnoringExpiry(tokenString string, secretKey []byte) (Identity, error) {
	return parse(tokenString, secretKey, jwt.WithoutClaimsValidation())
}

func parse(tokenString string, secretKey []byte, opts ...jwt.ParserOption) (Identity, error) {
	claims := &Claims{}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, common.ErrTokenExpired
		}
		return Identity{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" || claims.ExpiresAt == nil {
		return Identity{}, common.ErrInvalidToken
	}

	return Identity{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Role:     claims.Role,
		Name:     claims.Name,
		Email:    claims.Email,
	}, nil
}
