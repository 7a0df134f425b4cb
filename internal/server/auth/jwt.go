// Package auth issues and validates the bearer credentials of the sync API
// and carries the authenticated caller through request contexts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the registered claims plus the caller's user id and role.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

func GenerateToken(caller tables.Caller, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: caller.UserID,
		Role:   string(caller.Role),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates tokenString and returns the caller it was issued to.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// validation yields an error wrapping common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (tables.Caller, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return tables.Caller{}, common.ErrTokenExpired
		}
		return tables.Caller{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return tables.Caller{}, common.ErrInvalidToken
	}

	return tables.Caller{UserID: claims.UserID, Role: tables.ParseRole(claims.Role)}, nil
}
