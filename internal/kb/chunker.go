package kb

import "strings"

const DefaultChunkMaxChars = 500

// Chunker splits raw document text into bounded-size segments, preferring
// sentence boundaries. A sentence that alone exceeds the bound is split at
// word boundaries; only a single over-long word is ever kept whole.
type Chunker struct {
	maxChars int
}

func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultChunkMaxChars
	}
	return &Chunker{maxChars: maxChars}
}

func (c *Chunker) Split(text string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, sentence := range splitSentences(text) {
		pieces := []string{sentence}
		if len(sentence) > c.maxChars {
			pieces = splitWords(sentence, c.maxChars)
		}

		for _, piece := range pieces {
			if current.Len() > 0 && current.Len()+1+len(piece) > c.maxChars {
				flush()
			}
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(piece)
		}
	}

	flush()
	return chunks
}

// splitSentences breaks text after runs of sentence terminators. Whitespace
// runs inside a sentence are collapsed to single spaces.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	lastWasSpace := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if current.Len() > 0 {
				lastWasSpace = true
			}
			continue
		}

		if lastWasSpace {
			current.WriteByte(' ')
			lastWasSpace = false
		}
		current.WriteRune(r)

		if isTerminator(r) {
			// A run of terminators ends the sentence once.
			if i+1 >= len(runes) || !isTerminator(runes[i+1]) {
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}

	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitWords packs words into pieces no longer than maxChars. A word longer
// than the bound is kept whole rather than truncated.
func splitWords(sentence string, maxChars int) []string {
	var pieces []string
	var current strings.Builder

	for _, word := range strings.Fields(sentence) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}
