package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("dashboard", RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "dashboard" {
		t.Errorf("Subject = %q, want dashboard", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("lifetime = %v, want 1h", got)
	}
}

func TestGenerateToken_Validation(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		role    Role
		secret  string
		want    error
	}{
		{"short secret", "x", RoleViewer, "short", ErrSecretTooShort},
		{"bad role", "x", Role("admin"), testSecret, ErrInvalidRole},
		{"no subject", "", RoleViewer, testSecret, ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateToken(tt.subject, tt.role, tt.secret, 0); !errors.Is(err, tt.want) {
				t.Errorf("GenerateToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("cli", RoleViewer, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-valid-jwt"},
		{"wrong secret", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			Role:             RoleViewer,
		}, jwt.SigningMethodHS256, []byte(strings.Repeat("y", 40)))},
		{"expired", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(past)},
			Role:             RoleViewer,
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"no expiry", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "x"},
			Role:             RoleViewer,
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"unknown role", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			Role:             Role("owner"),
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"none algorithm", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			Role:             RoleOperator,
		}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"truncated", valid[:len(valid)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
