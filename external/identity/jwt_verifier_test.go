package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestVerify_ValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256)

	userID, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, "another-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256)

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for wrong signing secret")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}, jwt.SigningMethodHS256)

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-1"}, jwt.SigningMethodHS256)

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for token without expiry")
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256)

	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for token without subject")
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	if _, err := v.Verify(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
