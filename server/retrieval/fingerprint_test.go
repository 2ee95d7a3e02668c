package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "how do silos work", "how do silos work"},
		{"surrounding whitespace", "  how do silos work \n", "how do silos work"},
		{"internal runs", "how \t do\n\nsilos   work", "how do silos work"},
		{"case preserved", "How Do Silos Work", "How Do Silos Work"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, NormalizeQuestion(tt.input))
		})
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("How do silos work?", 5, 0.7)
	require.Len(t, base, fingerprintLength)
	require.Regexp(t, "^[0-9a-f]+$", base)

	// Whitespace and casing differences collapse to the same fingerprint.
	require.Equal(t, base, Fingerprint("  how do\tsilos   WORK? ", 5, 0.7))

	// Any option change produces a different fingerprint.
	require.NotEqual(t, base, Fingerprint("How do silos work?", 3, 0.7))
	require.NotEqual(t, base, Fingerprint("How do silos work?", 5, 0.2))
	require.NotEqual(t, base, Fingerprint("How do barns work?", 5, 0.7))
}

func TestFingerprintStable(t *testing.T) {
	// The fingerprint feeds cache keys, so it must not drift across runs.
	require.Equal(t, Fingerprint("drying grain", 5, 0), Fingerprint("drying grain", 5, 0))
}
