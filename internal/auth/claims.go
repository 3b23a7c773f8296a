package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// DefaultTTL is the token lifetime used when none is given.
const DefaultTTL = 24 * time.Hour

// Claims extends the JWT registered claims with the caller's role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateToken signs a token for subject with role, valid for ttl.
func GenerateToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	if len(secret) < MinSecretLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLength)
	}
	if _, err := ParseRole(string(role)); err != nil {
		return "", fmt.Errorf("%w: %q", err, role)
	}
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns its claims. It checks the
// signature, the algorithm, the expiry and the required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
