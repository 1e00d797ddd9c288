package kb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerSentenceBounded(t *testing.T) {
	chunker := NewChunker(10)

	chunks := chunker.Split("Hello. World. This is a test.")
	assert.Equal(t, []string{"Hello.", "World.", "This is a", "test."}, chunks)
}

func TestChunkerPacksSentencesUpToBound(t *testing.T) {
	chunker := NewChunker(20)

	chunks := chunker.Split("One. Two. Three.")
	assert.Equal(t, []string{"One. Two. Three."}, chunks)
}

func TestChunkerFlushesBeforeOverflow(t *testing.T) {
	chunker := NewChunker(12)

	chunks := chunker.Split("First one. Second two.")
	assert.Equal(t, []string{"First one.", "Second two."}, chunks)
}

func TestChunkerNeverEmitsEmptyChunks(t *testing.T) {
	chunker := NewChunker(10)

	assert.Empty(t, chunker.Split(""))
	assert.Empty(t, chunker.Split("   \n\t  "))

	for _, chunk := range chunker.Split("A. B. C. D. E. F. G.") {
		assert.NotEmpty(t, chunk)
	}
}

func TestChunkerRespectsBoundExceptSingleWord(t *testing.T) {
	chunker := NewChunker(10)

	chunks := chunker.Split("Supercalifragilistic expialidocious words here.")
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		if strings.Contains(chunk, " ") {
			assert.LessOrEqual(t, len(chunk), 10)
		}
	}
	// The over-long single words survive whole.
	assert.Contains(t, chunks, "Supercalifragilistic")
	assert.Contains(t, chunks, "expialidocious")
}

func TestChunkerHandlesExclamationAndQuestion(t *testing.T) {
	chunker := NewChunker(30)

	chunks := chunker.Split("Really? Yes! Absolutely certain.")
	assert.Equal(t, []string{"Really? Yes!", "Absolutely certain."}, chunks)
}

func TestChunkerCollapsesWhitespace(t *testing.T) {
	chunker := NewChunker(50)

	chunks := chunker.Split("First  sentence\nhere. Second\t sentence.")
	assert.Equal(t, []string{"First sentence here. Second sentence."}, chunks)
}

func TestChunkerTrailingTextWithoutTerminator(t *testing.T) {
	chunker := NewChunker(50)

	chunks := chunker.Split("Complete sentence. trailing fragment")
	assert.Equal(t, []string{"Complete sentence. trailing fragment"}, chunks)
}

func TestChunkerLongDocument(t *testing.T) {
	chunker := NewChunker(500)

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("This sentence is repeated to build a longer document body. ")
	}

	chunks := chunker.Split(b.String())
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 500)
		assert.NotEmpty(t, chunk)
	}
}
