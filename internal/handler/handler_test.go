package handler

import "testing"

// Суммы принимаются и с точкой, и с запятой; мусор отклоняется.
func TestParseAmount(t *testing.T) {
	valid := map[string]float64{
		"100":    100,
		"100.50": 100.5,
		"100,50": 100.5,
		" 250 ":  250,
		"10,0":   10,
	}
	for in, want := range valid {
		got, err := parseAmount(in)
		if err != nil {
			t.Errorf("parseAmount(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseAmount(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "abc", "-5", "0", "10.5.5"} {
		if _, err := parseAmount(in); err == nil {
			t.Errorf("parseAmount(%q) must fail", in)
		}
	}
}
