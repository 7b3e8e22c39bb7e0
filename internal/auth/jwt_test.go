package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSecret = "test-secret-key-that-is-long-enough"

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	token, err := NewAccessToken(userID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	got, err := ValidateAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if got != userID {
		t.Errorf("subject = %v, want %v", got, userID)
	}
}

func TestAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewAccessToken(uuid.New(), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	if _, err := ValidateAccessToken(token, "another-secret-key-equally-long-x"); err == nil {
		t.Error("token validated with the wrong secret")
	}
}

func TestAccessToken_Expired(t *testing.T) {
	t.Parallel()

	token, err := NewAccessToken(uuid.New(), testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	if _, err := ValidateAccessToken(token, testSecret); err == nil {
		t.Error("expired token validated")
	}
}

func TestAccessToken_Tampered(t *testing.T) {
	t.Parallel()

	token, err := NewAccessToken(uuid.New(), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts, want 3", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := ValidateAccessToken(tampered, testSecret); err == nil {
		t.Error("tampered token validated")
	}
}

func TestAccessToken_Garbage(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := ValidateAccessToken(tok, testSecret); err == nil {
			t.Errorf("ValidateAccessToken(%q) error = nil, want error", tok)
		}
	}
}

func TestNewAccessToken_EmptySecret(t *testing.T) {
	t.Parallel()

	if _, err := NewAccessToken(uuid.New(), "", time.Hour); err == nil {
		t.Error("NewAccessToken with empty secret succeeded")
	}
}
