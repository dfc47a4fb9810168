package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller's user name in the subject.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) User() string {
	if c.Username != "" {
		return c.Username
	}

	return c.Subject
}

// NewToken signs an HS256 access token for username. Token issuance belongs
// to the identity provider; this exists for local tooling and tests.
func NewToken(secret, username string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret not found")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.User() == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
