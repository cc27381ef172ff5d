package ticket

import "errors"

// Ticketing errors. Facade methods wrap the underlying host error with one
// of these, so callers classify failures with errors.Is.
var (
	// ErrRetrieval is returned when the ticket context (id or comments)
	// cannot be read from the host.
	ErrRetrieval = errors.New("cannot read ticket context from host")

	// ErrNotFound is returned when the host reports that the text to redact
	// does not occur in the comment. Workflows treat it as non-fatal.
	ErrNotFound = errors.New("redaction target not found in comment")

	// ErrRedaction is returned when a redaction request fails for any reason
	// other than ErrNotFound.
	ErrRedaction = errors.New("redaction request failed")

	// ErrTicketChanged is returned when the comments read belong to a
	// different ticket than the id read with them.
	ErrTicketChanged = errors.New("active ticket changed while reading its context")

	// ErrInvalidTicketID is returned when a ticket id payload is not a
	// positive integer.
	ErrInvalidTicketID = errors.New("invalid ticket id")
)
