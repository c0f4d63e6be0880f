package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestUserID_Valid(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	uid, err := v.UserID(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "user-123" {
		t.Errorf("uid = %q, want user-123", uid)
	}
}

func TestUserID_WrongSecret(t *testing.T) {
	v := NewVerifier([]byte("right-secret"))
	token := signToken(t, []byte("wrong-secret"), jwt.MapClaims{"sub": "user-123"})

	if _, err := v.UserID(token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestUserID_Expired(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)
	token := signToken(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.UserID(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestUserID_NoSubject(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)
	token := signToken(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.UserID(token); err == nil {
		t.Error("expected error for missing subject")
	}
}

func TestUserID_Garbage(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))
	if _, err := v.UserID("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}
