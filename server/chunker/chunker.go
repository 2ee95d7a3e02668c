// Package chunker splits normalized document text into bounded,
// overlapping chunks aligned to sentence boundaries.
package chunker

import (
	"strings"

	"github.com/granary-ai/granary/internal/errors"
)

const (
	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the default number of tail characters repeated
	// at the head of the following chunk.
	DefaultChunkOverlap = 50
)

// Chunk is a contiguous window of the normalized document text.
// CharStart and CharEnd are rune offsets into the normalized text,
// so Text always equals normalized[CharStart:CharEnd].
type Chunk struct {
	Ordinal   int32
	Text      string
	CharStart int
	CharEnd   int
}

// Chunker produces deterministic chunks for a fixed configuration.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a chunker. The overlap must be smaller than the chunk size.
func New(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, errors.InvalidArgument("chunk size must be positive")
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, errors.InvalidArgument("chunk overlap must be non-negative and smaller than chunk size")
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Normalize collapses all whitespace runs into single spaces and trims
// the ends. Chunk offsets refer to this normalized form.
func Normalize(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// Split chunks the content. Whitespace-only input yields an EMPTY_INPUT error.
// Sentences are packed greedily until the next one would overflow the chunk
// size; sentences longer than the chunk size are hard-split. Every non-space
// character of the normalized content lands in at least one chunk.
func (c *Chunker) Split(content string) ([]Chunk, error) {
	normalized := Normalize(content)
	if normalized == "" {
		return nil, errors.EmptyInput("content is empty or whitespace-only")
	}

	runes := []rune(normalized)
	spans := sentenceSpans(runes)

	var chunks []Chunk
	emit := func(start, end int) {
		chunks = append(chunks, Chunk{
			Ordinal:   int32(len(chunks)),
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
	}
	prevEnd := func() int {
		return chunks[len(chunks)-1].CharEnd
	}

	chunkStart := -1
	curEnd := 0
	k := 0
	for k < len(spans) {
		s := spans[k]

		if s[1]-s[0] > c.chunkSize {
			// A single sentence longer than the chunk size is hard-split
			// into full-size pieces that still overlap each other.
			if chunkStart >= 0 {
				emit(chunkStart, curEnd)
				chunkStart = -1
			}
			pos := s[0]
			for {
				pieceEnd := pos + c.chunkSize
				if pieceEnd >= s[1] {
					emit(pos, s[1])
					break
				}
				emit(pos, pieceEnd)
				pos = pieceEnd - c.chunkOverlap
			}
			k++
			continue
		}

		if chunkStart < 0 {
			start := s[0]
			if len(chunks) > 0 && c.chunkOverlap > 0 {
				start = c.overlapStart(runes, prevEnd())
			}
			// Shrink the carried overlap if it would not leave room
			// for the sentence itself.
			if s[1]-start > c.chunkSize {
				start = s[1] - c.chunkSize
				if start > s[0] {
					start = s[0]
				}
			}
			chunkStart = start
			curEnd = s[1]
			k++
			continue
		}

		if s[1]-chunkStart <= c.chunkSize {
			curEnd = s[1]
			k++
			continue
		}

		emit(chunkStart, curEnd)
		chunkStart = -1
	}
	if chunkStart >= 0 {
		emit(chunkStart, curEnd)
	}

	return chunks, nil
}

// overlapStart returns where the next chunk begins so that it repeats the
// tail of the previous chunk, re-anchored to a word boundary.
func (c *Chunker) overlapStart(runes []rune, prevEnd int) int {
	start := prevEnd - c.chunkOverlap
	if start < 0 {
		start = 0
	}
	for i := start; i < prevEnd; i++ {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return start
}

// isSentenceTerminator reports whether r can end a sentence when followed
// by a space or the end of the text, optionally through closing marks.
func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosingMark(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

// sentenceSpans returns [start, end) rune offsets of each sentence.
// The single space separating sentences belongs to neither span.
func sentenceSpans(runes []rune) [][2]int {
	var spans [][2]int
	start := 0
	i := 0
	for i < len(runes) {
		if isSentenceTerminator(runes[i]) {
			j := i + 1
			for j < len(runes) && isClosingMark(runes[j]) {
				j++
			}
			if j >= len(runes) || runes[j] == ' ' {
				spans = append(spans, [2]int{start, j})
				i = j
				for i < len(runes) && runes[i] == ' ' {
					i++
				}
				start = i
				continue
			}
		}
		i++
	}
	if start < len(runes) {
		spans = append(spans, [2]int{start, len(runes)})
	}
	return spans
}
