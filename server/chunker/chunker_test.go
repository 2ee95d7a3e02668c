package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granary-ai/granary/internal/errors"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		overlap   int
		expectErr bool
	}{
		{"valid", 500, 50, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -1, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)

	for _, content := range []string{"", "   ", "\n\t  \r\n"} {
		_, err := c.Split(content)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyInput), "content %q", content)
	}
}

func TestSplitSingleChunk(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)

	chunks, err := c.Split("A short document. Nothing more to say.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, int32(0), chunks[0].Ordinal)
	assert.Equal(t, "A short document. Nothing more to say.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, len([]rune(chunks[0].Text)), chunks[0].CharEnd)
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)

	chunks, err := c.Split("Hello   world.\n\nSecond\tline  here.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world. Second line here.", chunks[0].Text)
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(80, 20)
	require.NoError(t, err)

	content := "One sentence here. Another follows it. A third one too. And then a fourth. Finally a fifth sentence ends it."

	first, err := c.Split(content)
	require.NoError(t, err)
	second, err := c.Split(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitBoundsAndOffsets(t *testing.T) {
	const size, overlap = 120, 30
	c, err := New(size, overlap)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, "Sentence number %02d carries a handful of ordinary words. ", i)
	}

	content := sb.String()
	chunks, err := c.Split(content)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	normalized := []rune(Normalize(content))
	for i, ch := range chunks {
		assert.Equal(t, int32(i), ch.Ordinal, "ordinals must be dense")
		length := ch.CharEnd - ch.CharStart
		assert.LessOrEqual(t, length, size, "chunk %d exceeds size", i)
		assert.Greater(t, length, 0)
		assert.Equal(t, string(normalized[ch.CharStart:ch.CharEnd]), ch.Text,
			"chunk %d text must match its window", i)
	}

	for i := 1; i < len(chunks); i++ {
		carried := chunks[i-1].CharEnd - chunks[i].CharStart
		assert.GreaterOrEqual(t, carried, 0, "chunk %d starts after the previous ended", i)
		assert.LessOrEqual(t, carried, overlap, "chunk %d carries more than the configured overlap", i)
	}
}

func TestSplitCoversAllText(t *testing.T) {
	c, err := New(90, 15)
	require.NoError(t, err)

	content := "Alpha beta gamma delta. Epsilon zeta eta theta iota. Kappa lambda mu nu xi omicron. Pi rho sigma tau. Upsilon phi chi psi omega ends the line."
	chunks, err := c.Split(content)
	require.NoError(t, err)

	normalized := []rune(Normalize(content))
	covered := make([]bool, len(normalized))
	for _, ch := range chunks {
		for i := ch.CharStart; i < ch.CharEnd; i++ {
			covered[i] = true
		}
	}
	for i, r := range normalized {
		if r == ' ' {
			continue
		}
		assert.True(t, covered[i], "rune %d %q is not covered by any chunk", i, string(r))
	}
}

func TestSplitHardSplitsLongSentence(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)

	long := strings.Repeat("a", 1200)
	chunks, err := c.Split(long)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 500, chunks[0].CharEnd)
	assert.Equal(t, 450, chunks[1].CharStart)
	assert.Equal(t, 950, chunks[1].CharEnd)
	assert.Equal(t, 900, chunks[2].CharStart)
	assert.Equal(t, 1200, chunks[2].CharEnd)
}

func TestSplitWithoutOverlap(t *testing.T) {
	c, err := New(60, 0)
	require.NoError(t, err)

	content := "First sentence sits here nicely. Second sentence follows right after. Third sentence closes the set."
	chunks, err := c.Split(content)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].CharStart, chunks[i-1].CharEnd,
			"chunks must not overlap when overlap is zero")
	}
}

func TestSplitKeepsSentencesIntact(t *testing.T) {
	c, err := New(70, 10)
	require.NoError(t, err)

	content := "Short one. Another short one! A third short one? Yet another short one. The last short one."
	chunks, err := c.Split(content)
	require.NoError(t, err)

	for i, ch := range chunks {
		last := ch.Text[len(ch.Text)-1]
		assert.Contains(t, ".!?", string(last), "chunk %d should end at a sentence boundary: %q", i, ch.Text)
	}
}

func TestSplitUnicode(t *testing.T) {
	c, err := New(30, 5)
	require.NoError(t, err)

	content := "Café déjà vu. Très bien, naïve jalapeño. Smörgåsbord på fjället."
	chunks, err := c.Split(content)
	require.NoError(t, err)

	normalized := []rune(Normalize(content))
	for _, ch := range chunks {
		assert.Equal(t, string(normalized[ch.CharStart:ch.CharEnd]), ch.Text)
		assert.LessOrEqual(t, ch.CharEnd-ch.CharStart, 30)
	}
}
