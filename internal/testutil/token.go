package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWTSecret   = "test-secret"
	JWTIssuer   = "grocery-accounts"
	JWTAudience = "grocery-service"
)

// Token signs a bearer token the way the account service does.
func Token(t testing.TB, subject string, admin bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject,
		"admin": admin,
		"iss":   JWTIssuer,
		"aud":   JWTAudience,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}
