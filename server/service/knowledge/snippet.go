package knowledge

import "strings"

// PreviewLimit is the default length for document and answer previews.
const PreviewLimit = 120

// Preview returns a single-line prefix of text for listings: whitespace
// runs collapse to one space, the cut lands on a word boundary when one
// exists inside the window, and multi-byte text is never split mid-rune.
func Preview(text string, limit int) string {
	flattened := strings.Join(strings.Fields(text), " ")
	if limit <= 0 {
		return flattened
	}

	runes := []rune(flattened)
	if len(runes) <= limit {
		return flattened
	}

	cut := limit
	for i := limit; i > 0; i-- {
		if runes[i-1] == ' ' {
			cut = i - 1
			break
		}
	}
	return string(runes[:cut]) + "..."
}
