package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Keys understood by Host.Get.
const (
	// KeyTicketID is the key of the active ticket's identifier.
	KeyTicketID = "ticket.id"

	// KeyTicketComments is the key of the active ticket's comment list.
	KeyTicketComments = "ticket.comments"
)

// Payload is a keyed response from Host.Get. Each requested key maps to its
// raw JSON value.
type Payload map[string]json.RawMessage

// RequestOptions describes an API request proxied through the host.
type RequestOptions struct {
	// URL is the host-relative API path, e.g. "/api/v2/tickets/1.json".
	URL string

	// Method is the HTTP method.
	Method string

	// ContentType is the request body's media type.
	ContentType string

	// Body is the request body.
	Body []byte
}

// Response is a successful reply to Host.Request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Host is the ticketing platform integration consumed by the facade.
type Host interface {
	// Get returns the payload for key. The payload must contain key.
	Get(ctx context.Context, key string) (Payload, error)

	// Request issues an API request. A non-2xx reply is returned as an
	// error, which should be a *StatusError when the host received one.
	Request(ctx context.Context, opts RequestOptions) (*Response, error)

	// Notify shows a user-visible notification.
	Notify(ctx context.Context, message string) error
}

// StatusError is returned by a Host when an API request receives a non-2xx
// reply.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("host responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("host responded with status %d: %s", e.StatusCode, e.Body)
}

// ParseTicketID decodes a ticket id from raw JSON. Both a JSON number and a
// JSON string holding a number are accepted, since hosts and browsers differ
// in how they serialise ids.
func ParseTicketID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidTicketID)
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidTicketID, err)
		}
	} else {
		s = string(raw)
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTicketID, s)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d is not positive", ErrInvalidTicketID, id)
	}
	return id, nil
}
