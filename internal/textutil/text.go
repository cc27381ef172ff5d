package textutil

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements are the elements whose boundaries separate words in rendered
// text. A line break is emitted at each of their tags so that the text of two
// adjacent paragraphs is not glued into one token.
var blockElements = map[atom.Atom]bool{
	atom.Address:    true,
	atom.Article:    true,
	atom.Blockquote: true,
	atom.Br:         true,
	atom.Dd:         true,
	atom.Div:        true,
	atom.Dl:         true,
	atom.Dt:         true,
	atom.Footer:     true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Header:     true,
	atom.Hr:         true,
	atom.Li:         true,
	atom.Ol:         true,
	atom.P:          true,
	atom.Pre:        true,
	atom.Section:    true,
	atom.Table:      true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Tr:         true,
	atom.Ul:         true,
}

// rawTextElements have content that is never rendered.
var rawTextElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
}

// StripMarkup returns the rendered plain-text content of s.
// Tags and comments are removed, character references are decoded, and the
// contents of script and style elements are dropped. Input without markup is
// returned with its entities decoded and otherwise unchanged.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))

	z := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is the result.
			return sb.String()

		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if rawTextElements[a] && tt == html.StartTagToken {
				skipDepth++
				continue
			}
			if blockElements[a] {
				writeBreak(&sb)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if rawTextElements[a] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blockElements[a] {
				writeBreak(&sb)
			}

		case html.CommentToken, html.DoctypeToken:
			// not rendered
		}
	}
}

// writeBreak appends a newline unless the output is empty or already ends
// with one.
func writeBreak(sb *strings.Builder) {
	if sb.Len() == 0 {
		return
	}
	if strings.HasSuffix(sb.String(), "\n") {
		return
	}
	sb.WriteByte('\n')
}

// Join concatenates parts with delim inserted between adjacent elements.
func Join(parts []string, delim string) string {
	return strings.Join(parts, delim)
}

// Split is the inverse of Join: Join(Split(s, d), d) == s for every s and d.
func Split(s, delim string) []string {
	if delim == "" {
		return []string{s}
	}
	return strings.Split(s, delim)
}

// SplitTrimmed splits s on delim, trims whitespace from every part and drops
// the parts that are empty after trimming. The order of parts is preserved
// and duplicates are kept.
func SplitTrimmed(s, delim string) []string {
	parts := Split(s, delim)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = Trim(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Trim removes leading and trailing whitespace from s.
func Trim(s string) string {
	return strings.TrimSpace(s)
}
