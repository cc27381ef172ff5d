package model

import "strings"

// Comment is a ticket comment. It is created by the ticketing host and is
// read-only to piiscrub.
type Comment struct {
	// ID is the host's comment identifier.
	ID int64 `json:"id"`

	// Text is the comment body. It may contain HTML markup.
	Text string `json:"text"`
}

// Contains reports whether the comment text contains s as a literal,
// case-sensitive substring. An empty s never matches.
func (c Comment) Contains(s string) bool {
	return s != "" && strings.Contains(c.Text, s)
}

// Entity is a span of text that a detection backend classified as PII.
type Entity struct {
	// Text is the literal text of the span.
	Text string `json:"text"`

	// Type is the backend's entity category (e.g. "PERSON", "PHONE").
	Type string `json:"type,omitempty"`

	// Score is the backend's confidence in [0, 1].
	Score float64 `json:"score"`
}

// Match records that a comment contains an approved entity string.
type Match struct {
	// CommentID is the comment that contains the entity.
	CommentID int64 `json:"comment_id"`

	// Entity is the approved entity string found in the comment.
	Entity string `json:"entity"`
}

// RedactionRequest is one instruction to the host to redact Text inside a
// comment. It carries no retry state.
type RedactionRequest struct {
	TicketID  int64  `json:"ticket_id"`
	CommentID int64  `json:"comment_id"`
	Text      string `json:"text"`
}
