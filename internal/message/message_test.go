package message

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"plain text", "hello world", nil},
		{"unicode", "héllo wörld 💬", nil},
		{"exactly max size", strings.Repeat("a", MaxContentBytes), nil},
		{"over max size", strings.Repeat("a", MaxContentBytes+1), ErrTooBig},
		{"empty", "", ErrInvalidText},
		{"whitespace only", " \t\n ", ErrInvalidText},
		{"invalid utf8", string([]byte{0xff, 0xfe}), ErrInvalidText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidateContent(tt.content); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateContent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateContent_SizeLimitIsBytes(t *testing.T) {
	t.Parallel()

	// 4-byte runes: valid at the byte limit, rejected one rune over.
	ok := strings.Repeat("💬", MaxContentBytes/4)
	if err := ValidateContent(ok); err != nil {
		t.Errorf("ValidateContent(at byte limit) error = %v", err)
	}
	if err := ValidateContent(ok + "💬"); !errors.Is(err, ErrTooBig) {
		t.Errorf("ValidateContent(over byte limit) error = %v, want ErrTooBig", err)
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"script stripped", "hello <script>alert(1)</script>world", "hello world"},
		{"tags stripped", "<b>bold</b> move", "bold move"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
