package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateNickAcceptsEveryday(t *testing.T) {
	for _, nick := range []string{"alice", "Bob Smith", "élève_1", "Åsa", "Никита", "Θεόδωρος", "math rocks!"} {
		if err := ValidateNick(nick); err != nil {
			t.Errorf("ValidateNick(%q) = %v, want nil", nick, err)
		}
	}
}

func TestValidateNickRejects(t *testing.T) {
	tests := []struct {
		nick string
		want error
	}{
		{"", ErrNickEmpty},
		{"<script>", ErrNickBadChars},
		{"a\tb", ErrNickBadChars},
		{strings.Repeat("7", 32), ErrNickResourceID},
		{"Server", ErrNickReserved},
		{"constructor", ErrNickReserved},
		{"prototype", ErrNickReserved},
	}
	for _, tt := range tests {
		if err := ValidateNick(tt.nick); !errors.Is(err, tt.want) {
			t.Errorf("ValidateNick(%q) = %v, want %v", tt.nick, err, tt.want)
		}
	}
}

func TestIsResourceID(t *testing.T) {
	if !IsResourceID(strings.Repeat("0", 32)) {
		t.Error("32 digits should be a resource ID")
	}
	for _, s := range []string{"", "12345", strings.Repeat("0", 31), strings.Repeat("0", 33), strings.Repeat("a", 32)} {
		if IsResourceID(s) {
			t.Errorf("IsResourceID(%q) = true, want false", s)
		}
	}
}

func TestSanitizeChatStripsMarkup(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"<b>bold</b> move", "bold move"},
		{"line<br>line", "line<br />line"},
		{"line<BR/>line", "line<br />line"},
		{"a<br><br><br>b", "a<br />b"},
		{"<script>alert(1)</script>ok", "alert(1)ok"},
	}
	for _, tt := range tests {
		if got := SanitizeChat(tt.in); got != tt.want {
			t.Errorf("SanitizeChat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
