package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims defines the custom claims we want to include in our JWT.
// We embed jwt.RegisteredClaims to include standard claims like 'ExpiresAt'.
// UserID identifies the authenticated user; IsAdmin lets the admin middleware
// authorize without an extra database lookup.
type AppClaims struct {
	UserID  int64 `json:"userID"`
	IsAdmin bool  `json:"isAdmin"`
	jwt.RegisteredClaims
}

// sessionLifetime bounds a login session to 24 hours.
const sessionLifetime = 24 * time.Hour

// GenerateJWT creates a new signed JWT string for a given user.
func GenerateJWT(userID int64, isAdmin bool, secret string) (string, error) {
	expirationTime := time.Now().Add(sessionLifetime)

	claims := &AppClaims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	// HS256 (HMAC using SHA-256) is a common and secure signing method.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// Sign the token with our secret key to generate the final token string.
	// This signature ensures that the token cannot be tampered with by the client.
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateJWT parses and validates a JWT string.
// It checks the token's signature to ensure it hasn't been tampered with and
// verifies standard claims like the expiration time.
// If valid, it returns the custom claims.
func ValidateJWT(tokenString string, secret string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Security check: ensure the token's signing method is what we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		// This handles various errors, such as a malformed token, an invalid
		// signature, or an expired token (jwt.ErrTokenExpired).
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
