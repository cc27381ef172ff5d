package evaluate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Format is the layout of a labelled token file.
type Format string

const (
	// FormatCoNLL is the CoNLL-2003 layout: one "word pos chunk label" line
	// per token, blank lines between sentences and -DOCSTART- lines between
	// documents. Labels use the IOB scheme.
	FormatCoNLL Format = "conll"

	// FormatWNUT is the WNUT-17 layout: one "token label" line per token and
	// blank lines between sentences. Labels use the BIO scheme.
	FormatWNUT Format = "wnut"
)

// outside is the label of tokens outside every entity.
const outside = "O"

// maxLineSize bounds a single line of a token file.
const maxLineSize = 1024 * 1024

var (
	// ErrUnknownFormat is returned for a format name other than conll or wnut.
	ErrUnknownFormat = errors.New("unknown data format: expected conll or wnut")

	// ErrMalformedLine is returned for a token line with the wrong number of
	// columns.
	ErrMalformedLine = errors.New("malformed token line")
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCoNLL, FormatWNUT:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Sample is one labelled sentence. Span types are the data set's labels
// without their B- or I- prefix.
type Sample struct {
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
}

// token is one token line.
type token struct {
	text  string
	label string
}

// Read reads the samples of r in format f.
func Read(r io.Reader, f Format) ([]Sample, error) {
	switch f {
	case FormatCoNLL:
		return ReadCoNLL(r)
	case FormatWNUT:
		return ReadWNUT(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// ReadCoNLL reads CoNLL-2003 samples. The label is the fourth column.
func ReadCoNLL(r io.Reader) ([]Sample, error) {
	return readSentences(r, func(fields []string) (token, bool, error) {
		if fields[0] == "-DOCSTART-" {
			return token{}, false, nil
		}
		if len(fields) != 4 {
			return token{}, false, fmt.Errorf("%w: expected 4 columns, got %d", ErrMalformedLine, len(fields))
		}
		return token{text: fields[0], label: fields[3]}, true, nil
	})
}

// ReadWNUT reads WNUT-17 samples.
func ReadWNUT(r io.Reader) ([]Sample, error) {
	return readSentences(r, func(fields []string) (token, bool, error) {
		if len(fields) != 2 {
			return token{}, false, fmt.Errorf("%w: expected 2 columns, got %d", ErrMalformedLine, len(fields))
		}
		return token{text: fields[0], label: fields[1]}, true, nil
	})
}

// readSentences splits r into sentences on blank lines. parse turns the
// columns of a line into a token, or reports that the line is skipped.
func readSentences(r io.Reader, parse func([]string) (token, bool, error)) ([]Sample, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		samples []Sample
		tokens  []token
	)
	flush := func() {
		if len(tokens) > 0 {
			samples = append(samples, newSample(tokens))
			tokens = nil
		}
	}

	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			flush()
			continue
		}
		tok, ok, err := parse(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			tokens = append(tokens, tok)
		} else {
			flush()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	flush()
	return samples, nil
}

// newSample joins tokens with single spaces and turns runs of tokens with
// the same entity type into spans. A B- label always starts a new span.
func newSample(tokens []token) Sample {
	var (
		sb    strings.Builder
		spans []Span
		open  *Span
		pos   int
	)
	for i, tok := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
			pos++
		}
		start := pos
		sb.WriteString(tok.text)
		pos += utf8.RuneCountInString(tok.text)

		begin, typ := splitLabel(tok.label)
		if open != nil && (typ == "" || begin || typ != open.Type) {
			spans = append(spans, *open)
			open = nil
		}
		switch {
		case typ == "":
		case open == nil:
			open = &Span{Start: start, End: pos, Type: typ}
		default:
			open.End = pos
		}
	}
	if open != nil {
		spans = append(spans, *open)
	}
	return Sample{Text: sb.String(), Spans: spans}
}

// splitLabel strips the IOB prefix of a label. typ is empty outside
// entities.
func splitLabel(label string) (begin bool, typ string) {
	if label == outside || label == "" {
		return false, ""
	}
	switch {
	case strings.HasPrefix(label, "B-"):
		return true, label[2:]
	case strings.HasPrefix(label, "I-"):
		return false, label[2:]
	default:
		return false, label
	}
}
