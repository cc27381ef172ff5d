package detect

import (
	"unicode"
	"unicode/utf8"
)

// splitChunks splits text into pieces of at most maxBytes UTF-8 bytes.
// Cuts are made after the last whitespace inside the limit when there is
// one, and never inside a rune. Concatenating the pieces yields text.
func splitChunks(text string, maxBytes int) []string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxBytes {
		cut := cutPoint(text, maxBytes)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// cutPoint returns the byte index at which to cut text so the first part
// is at most maxBytes long. len(text) must exceed maxBytes.
func cutPoint(text string, maxBytes int) int {
	// Largest rune boundary within the limit.
	limit := maxBytes
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	if limit == 0 {
		// A single rune longer than maxBytes; take it whole.
		_, size := utf8.DecodeRuneInString(text)
		return size
	}

	for i := limit; i > 0; {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		if unicode.IsSpace(r) {
			return i
		}
		i -= size
	}
	return limit
}
