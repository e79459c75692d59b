// Package auth issues and verifies officer tokens and decides what each
// police role may do. Contributors are anonymous and never hold a token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "bailaid"

// Officer is the authenticated identity behind a request.
type Officer struct {
	ID      uuid.UUID `json:"officer_id"`
	Name    string    `json:"name"`
	Role    string    `json:"role"`
	Station string    `json:"station"`
}

// Actor is how the officer appears in case history and the audit log.
func (o Officer) Actor() string {
	if o.Name == "" {
		return o.ID.String()
	}
	return fmt.Sprintf("%s (%s)", o.Name, o.Role)
}

type Claims struct {
	Officer
	jwt.RegisteredClaims
}

// GenerateJWT signs a token for officer. expiration <= 0 means 12h, one shift.
func GenerateJWT(secret string, officer Officer, expiration time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if !ValidRole(officer.Role) {
		return "", fmt.Errorf("unknown role %q", officer.Role)
	}
	if expiration <= 0 {
		expiration = 12 * time.Hour
	}

	now := time.Now()
	claims := Claims{
		Officer: officer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   officer.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(secret string, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !ValidRole(claims.Role) {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}
