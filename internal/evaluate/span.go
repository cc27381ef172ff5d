package evaluate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/piiscrub/internal/model"
)

var (
	// ErrReservedCode is returned when a label is mapped to code 0, which
	// marks characters outside every entity.
	ErrReservedCode = errors.New("label code 0 is reserved for text outside entities")

	// ErrSpanOutOfRange is returned when a span ends past the text or starts
	// after it ends.
	ErrSpanOutOfRange = errors.New("span out of range")

	// ErrUnknownLabel is returned when a span's type has no code.
	ErrUnknownLabel = errors.New("label has no code")
)

// Span is a labelled range of characters. Start and End are rune offsets,
// End exclusive.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

// Len returns the number of characters the span covers.
func (s Span) Len() int {
	return s.End - s.Start
}

// EncodeLabels encodes spans over a text of length characters as one code
// per character. Characters outside every span get 0. A character covered
// by more than one span takes the code of the last one.
func EncodeLabels(length int, spans []Span, codes map[string]int) ([]int, error) {
	for label, code := range codes {
		if code == 0 {
			return nil, fmt.Errorf("%w: %q", ErrReservedCode, label)
		}
	}

	out := make([]int, length)
	for _, s := range spans {
		if s.Start < 0 || s.End > length || s.Start > s.End {
			return nil, fmt.Errorf("%w: [%d, %d) in text of length %d", ErrSpanOutOfRange, s.Start, s.End, length)
		}
		code, ok := codes[s.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, s.Type)
		}
		for i := s.Start; i < s.End; i++ {
			out[i] = code
		}
	}
	return out, nil
}

// SpanScore is a span with the share of its characters that the other
// side labelled with the same type.
type SpanScore struct {
	Span
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// spanScores scores each span against the encoding of the other side.
func spanScores(runes []rune, spans []Span, other []int, codes map[string]int) []SpanScore {
	out := make([]SpanScore, 0, len(spans))
	for _, s := range spans {
		code := codes[s.Type]
		hit := 0
		for i := s.Start; i < s.End; i++ {
			if other[i] == code {
				hit++
			}
		}
		score := 0.0
		if s.Len() > 0 {
			score = float64(hit) / float64(s.Len())
		}
		out = append(out, SpanScore{Span: s, Text: string(runes[s.Start:s.End]), Score: score})
	}
	return out
}

// locate returns a span for every non-overlapping occurrence of each
// entity's text. Types are upper-cased.
func locate(text string, entities []model.Entity) []Span {
	var spans []Span
	for _, e := range entities {
		if e.Text == "" {
			continue
		}
		typ := strings.ToUpper(e.Type)
		for off := 0; off < len(text); {
			i := strings.Index(text[off:], e.Text)
			if i < 0 {
				break
			}
			start := off + i
			end := start + len(e.Text)
			spans = append(spans, Span{
				Start: utf8.RuneCountInString(text[:start]),
				End:   utf8.RuneCountInString(text[:end]),
				Type:  typ,
			})
			off = end
		}
	}
	return spans
}
