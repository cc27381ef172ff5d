package detect

import (
	"context"
	"regexp"
	"strings"

	"github.com/nao1215/piiscrub/internal/model"
)

// Entity types reported by the pattern backend.
const (
	TypeEmail         = "EMAIL"
	TypePhone         = "PHONE"
	TypeCreditCard    = "CREDIT_DEBIT_NUMBER"
	TypeIPAddress     = "IP_ADDRESS"
	TypeAWSAccessKey  = "AWS_ACCESS_KEY"
	TypeGitHubToken   = "GITHUB_TOKEN"
	TypePrivateKey    = "PRIVATE_KEY"
	TypeCryptoAddress = "CRYPTO_ADDRESS"
)

// pattern is one rule of the pattern backend.
type pattern struct {
	typ   string
	re    *regexp.Regexp
	score float64

	// valid, when set, rejects matches the regexp alone cannot rule out.
	valid func(string) bool
}

// Patterns is an offline backend that finds structured PII and secrets
// with regular expressions. It needs no credentials, so it serves as a
// fallback when Comprehend is not reachable. Names and addresses have no
// fixed shape and are never found by it.
type Patterns struct {
	rules []pattern
}

// NewPatterns creates the pattern backend with the built-in rules.
func NewPatterns() *Patterns {
	return &Patterns{
		rules: []pattern{
			{
				typ:   TypeEmail,
				re:    regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
				score: 0.99,
			},
			{
				typ:   TypePrivateKey,
				re:    regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |ENCRYPTED |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
				score: 1,
			},
			{
				typ:   TypeAWSAccessKey,
				re:    regexp.MustCompile(`\b(?:AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}\b`),
				score: 0.99,
			},
			{
				typ:   TypeGitHubToken,
				re:    regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9_]{36,255}\b`),
				score: 0.99,
			},
			{
				typ:   TypeCreditCard,
				re:    regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
				score: 0.95,
				valid: luhnValid,
			},
			{
				typ:   TypeIPAddress,
				re:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
				score: 0.92,
			},
			{
				typ:   TypePhone,
				re:    regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?\(?\d{2,4}\)?[ .\-]\d{3,4}[ .\-]\d{3,4}\b`),
				score: 0.91,
			},
			{
				typ:   TypeCryptoAddress,
				re:    regexp.MustCompile(`\b(?:0x[a-fA-F0-9]{40}|bc1[a-z0-9]{39,59}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`),
				score: 0.95,
			},
		},
	}
}

// Register installs the pattern handler for ModelPattern.
func (p *Patterns) Register(r *Registry) {
	r.Register(ModelPattern, p.Entities)
}

// Entities is the Handler for ModelPattern. Matches are returned in rule
// order, then in order of appearance. A match overlapping text already
// claimed by an earlier rule is dropped, so the digits of a card number are
// never reported again as a phone number. The language is ignored.
func (p *Patterns) Entities(ctx context.Context, text, _ string) ([]model.Entity, error) {
	var (
		out     []model.Entity
		claimed [][2]int
	)
	for _, rule := range p.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var spans [][2]int
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			m := text[loc[0]:loc[1]]
			if rule.valid != nil && !rule.valid(m) {
				continue
			}
			if overlaps(claimed, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, [2]int{loc[0], loc[1]})
			out = append(out, model.Entity{Text: m, Type: rule.typ, Score: rule.score})
		}
		claimed = append(claimed, spans...)
	}
	return out, nil
}

// overlaps reports whether [start, end) intersects any of the spans.
func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// luhnValid reports whether the digits of s pass the Luhn checksum.
// Spaces and dashes are ignored.
func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
