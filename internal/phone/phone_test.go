package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"spaces stripped", "555 123 4567", "5551234567"},
		{"punctuation stripped", "(555) 123-4567", "5551234567"},
		{"plus preserved", "+1 555 123 4567", "+15551234567"},
		{"letters dropped", "abc", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"plus without digits", "+", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsFormatValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"5551234567", true},
		{"+15551234567", true},
		{"555123456789012", true},
		{"", false},
		{"0551234567", false},     // leading zero
		{"555123456", false},      // too short
		{"+5551234567890123", false}, // too long
	}
	for _, tc := range cases {
		if got := IsFormatValid(tc.in); got != tc.want {
			t.Fatalf("IsFormatValid(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
