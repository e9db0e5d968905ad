package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{
			name:       "valid strong password",
			password:   "SecurePass123",
			shouldFail: false,
		},
		{
			name:       "too short",
			password:   "Pass1",
			shouldFail: true,
		},
		{
			name:       "too long",
			password:   "Aa1" + strings.Repeat("x", MaxPasswordLen),
			shouldFail: true,
		},
		{
			name:       "missing uppercase",
			password:   "securepass123",
			shouldFail: true,
		},
		{
			name:       "missing lowercase",
			password:   "SECUREPASS123",
			shouldFail: true,
		},
		{
			name:       "missing digit",
			password:   "SecurePassXyz",
			shouldFail: true,
		},
		{
			name:       "common password rejected",
			password:   "Password123",
			shouldFail: true,
		},
		{
			name:       "symbols allowed but not required",
			password:   "MyP@ssw0rd!",
			shouldFail: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.shouldFail && err == nil {
				t.Errorf("expected validation to fail for %q", tt.password)
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("expected validation to pass for %q, got %v", tt.password, err)
			}
			// The caller-facing message never leaks which rule failed.
			if err != nil && err.Error() != "invalid password" {
				t.Errorf("validation error leaks details: %q", err.Error())
			}
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("SecurePass123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "SecurePass123" {
		t.Fatal("hash equals the plaintext")
	}

	if err := ComparePassword(hash, "SecurePass123"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := ComparePassword(hash, "WrongPass123"); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestHashPassword_EmptyRejected(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestIsInHistory(t *testing.T) {
	oldHash, err := HashPassword("OldPassword1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	history := []string{oldHash}

	if !IsInHistory("OldPassword1", history) {
		t.Error("expected OldPassword1 to be found in history")
	}
	if IsInHistory("FreshPassword2", history) {
		t.Error("did not expect FreshPassword2 in history")
	}
	if IsInHistory("OldPassword1", nil) {
		t.Error("empty history should never match")
	}
}

func TestAppendHistory(t *testing.T) {
	var history []string
	for i := 0; i < 7; i++ {
		history = AppendHistory(history, string(rune('a'+i)), 5)
	}

	if len(history) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(history))
	}
	// Oldest entries evicted, newest last.
	if history[0] != "c" || history[4] != "g" {
		t.Errorf("unexpected history order: %v", history)
	}
}
