package users

import (
	"strings"
	"testing"
)

func countAny(s, chars string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(chars, r) {
			n++
		}
	}
	return n
}

func TestGeneratePassword_ClassCounts(t *testing.T) {
	tests := []struct {
		name                 string
		lower, upper, digits int
	}{
		{"default shape", 4, 8, 4},
		{"digits only", 0, 0, 6},
		{"empty", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pw := GeneratePassword(tt.lower, tt.upper, tt.digits)

			if len(pw) != tt.lower+tt.upper+tt.digits {
				t.Fatalf("length = %d, want %d", len(pw), tt.lower+tt.upper+tt.digits)
			}
			if got := countAny(pw, lowerChars); got != tt.lower {
				t.Errorf("lowercase count = %d, want %d", got, tt.lower)
			}
			if got := countAny(pw, upperChars); got != tt.upper {
				t.Errorf("uppercase count = %d, want %d", got, tt.upper)
			}
			if got := countAny(pw, digitChars); got != tt.digits {
				t.Errorf("digit count = %d, want %d", got, tt.digits)
			}
		})
	}
}

func TestGeneratePassword_NotRepeating(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		seen[GeneratePassword(4, 8, 4)] = true
	}
	// 16 random characters colliding ten times would mean a broken RNG.
	if len(seen) < 2 {
		t.Error("generator returned the same password repeatedly")
	}
}
