package utils

import "testing"

func strPtr(s string) *string {
	return &s
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name  string
		input *string
		want  *string
	}{
		{"nil", nil, nil},
		{"empty", strPtr(""), nil},
		{"plain", strPtr("ivan_petrov"), strPtr("ivan_petrov")},
		{"at prefix stripped", strPtr("@ivan"), strPtr("ivan")},
		{"spaces removed", strPtr(" iv an "), strPtr("ivan")},
		{"html escaped", strPtr("a<b>c"), strPtr("a&lt;b&gt;c")},
		{"only control chars", strPtr("\x00\x01"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeUsername(tt.input)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("SanitizeUsername(%v) = %v, want %v", tt.input, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("SanitizeUsername(%v) = %q, want %q", tt.input, *got, *tt.want)
			}
		})
	}
}

func TestUsernameForDisplay(t *testing.T) {
	if got := UsernameForDisplay(strPtr("@ivan")); got != "@ivan" {
		t.Errorf("UsernameForDisplay(@ivan) = %q", got)
	}
	if got := UsernameForDisplay(nil); got != "без username" {
		t.Errorf("UsernameForDisplay(nil) = %q", got)
	}
}
