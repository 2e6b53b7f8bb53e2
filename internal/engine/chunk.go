package engine

import "strings"

// DefaultChunkSize is the auto-chunking threshold in characters. Texts at or
// below this size are embedded whole.
const DefaultChunkSize = 1000

// splitChunks breaks text into pieces of roughly chunkSize characters,
// preferring sentence boundaries and falling back to word boundaries. The
// chunk embeddings are averaged into a single document vector, so chunking
// never multiplies the number of indexed rows.
func splitChunks(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > chunkSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}

		// A single sentence longer than the chunk size is split on words.
		if len(sentence) > chunkSize {
			for _, word := range strings.Fields(sentence) {
				if current.Len()+len(word)+1 > chunkSize && current.Len() > 0 {
					chunks = append(chunks, strings.TrimSpace(current.String()))
					current.Reset()
				}
				current.WriteString(word)
				current.WriteByte(' ')
			}
			continue
		}

		current.WriteString(sentence)
		current.WriteByte(' ')
	}

	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

// splitSentences performs a cheap sentence split on terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
