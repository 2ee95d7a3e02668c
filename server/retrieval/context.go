package retrieval

import (
	"fmt"
	"strings"
	"unicode"
)

// contextChunk is one retrieved chunk with the provenance shown to the model.
type contextChunk struct {
	Title   string
	Ordinal int32
	Text    string
}

// buildContext assembles the generation context from chunks in retrieval
// order. Each chunk is prefixed with its provenance and the whole block
// stays under the character budget, cut at the last whole chunk that fits.
// The best chunk is always included, even when it alone exceeds the budget.
func buildContext(chunks []contextChunk, budget int) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		block := fmt.Sprintf("[%s #%d]\n%s", chunk.Title, chunk.Ordinal, chunk.Text)
		if i > 0 {
			if budget > 0 && sb.Len()+2+len(block) > budget {
				break
			}
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
	}
	return sb.String()
}

// snippet shortens text to roughly limit runes, cutting back to the last
// word boundary and appending an ellipsis.
func snippet(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
		cut--
	}
	if cut == 0 {
		// A single unbroken run of text, cut mid-word.
		cut = limit
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "..."
}
