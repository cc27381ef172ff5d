// Package tickettest provides an in-memory ticket.Host for tests.
package tickettest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/ticket"
)

var redactPathRe = regexp.MustCompile(`^/api/v2/tickets/(\d+)/comments/(\d+)/redact\.json$`)

// Host is an in-memory ticketing host. Redactions are applied to the stored
// comments, so a second redaction of the same text reports not found, as the
// real platform does.
type Host struct {
	mu sync.Mutex

	// TicketID is returned for ticket.id.
	TicketID int64

	// Comments are returned for ticket.comments.
	Comments []model.Comment

	// CommentsTicketID, when set, is reported under ticket.id in the
	// ticket.comments payload, as hosts that read both from one snapshot do.
	CommentsTicketID int64

	// GetErr, when set, is returned by every Get.
	GetErr error

	// FailText maps a redaction text to the error its request returns.
	FailText map[string]error

	requests      []model.RedactionRequest
	notifications []string
}

// New creates a host serving one ticket.
func New(ticketID int64, comments ...model.Comment) *Host {
	return &Host{
		TicketID: ticketID,
		Comments: comments,
		FailText: make(map[string]error),
	}
}

// Get implements ticket.Host.
func (h *Host) Get(_ context.Context, key string) (ticket.Payload, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.GetErr != nil {
		return nil, h.GetErr
	}

	switch key {
	case ticket.KeyTicketID:
		return ticket.Payload{key: json.RawMessage(strconv.FormatInt(h.TicketID, 10))}, nil
	case ticket.KeyTicketComments:
		type wire struct {
			ID    int64  `json:"id"`
			Value string `json:"value"`
		}
		out := make([]wire, len(h.Comments))
		for i, c := range h.Comments {
			out[i] = wire{ID: c.ID, Value: c.Text}
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		payload := ticket.Payload{key: data}
		if h.CommentsTicketID != 0 {
			payload[ticket.KeyTicketID] = json.RawMessage(strconv.FormatInt(h.CommentsTicketID, 10))
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown key %q", key)
	}
}

// Request implements ticket.Host. Only the redaction endpoint is supported.
func (h *Host) Request(_ context.Context, opts ticket.RequestOptions) (*ticket.Response, error) {
	m := redactPathRe.FindStringSubmatch(opts.URL)
	if m == nil || opts.Method != http.MethodPut {
		return nil, &ticket.StatusError{StatusCode: http.StatusNotFound, Body: "no route"}
	}
	ticketID, _ := strconv.ParseInt(m[1], 10, 64)
	commentID, _ := strconv.ParseInt(m[2], 10, 64)

	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(opts.Body, &body); err != nil {
		return nil, &ticket.StatusError{StatusCode: http.StatusBadRequest, Body: err.Error()}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests = append(h.requests, model.RedactionRequest{
		TicketID:  ticketID,
		CommentID: commentID,
		Text:      body.Text,
	})

	if err, ok := h.FailText[body.Text]; ok {
		return nil, err
	}
	if ticketID != h.TicketID {
		return nil, &ticket.StatusError{StatusCode: http.StatusNotFound, Body: "ticket not found"}
	}

	for i, c := range h.Comments {
		if c.ID != commentID {
			continue
		}
		if !strings.Contains(c.Text, body.Text) {
			return nil, &ticket.StatusError{StatusCode: http.StatusUnprocessableEntity, Body: "text not found"}
		}
		h.Comments[i].Text = strings.ReplaceAll(c.Text, body.Text, "▇")
		return &ticket.Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	}
	return nil, &ticket.StatusError{StatusCode: http.StatusNotFound, Body: "comment not found"}
}

// Notify implements ticket.Host.
func (h *Host) Notify(_ context.Context, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, message)
	return nil
}

// Requests returns every redaction request received, in arrival order.
func (h *Host) Requests() []model.RedactionRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.RedactionRequest(nil), h.requests...)
}

// Notifications returns every notification received.
func (h *Host) Notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notifications...)
}

// ErrUnavailable is a convenience error for simulating host outages.
var ErrUnavailable = errors.New("host unavailable")
