package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/piiscrub/internal/model"
)

// hostComment is the host's wire form of a comment.
type hostComment struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

// redactBody is the JSON body of a redaction request.
type redactBody struct {
	Text string `json:"text"`
}

// Client is the ticketing facade. It is safe for concurrent use if the
// underlying Host is.
type Client struct {
	// host is the injected ticketing integration.
	host Host

	// logger is used for structured logging.
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a facade over host.
func NewClient(host Host, opts ...Option) *Client {
	c := &Client{
		host:   host,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TicketID returns the active ticket's identifier.
func (c *Client) TicketID(ctx context.Context) (int64, error) {
	raw, err := c.get(ctx, KeyTicketID)
	if err != nil {
		return 0, err
	}

	id, err := ParseTicketID(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return id, nil
}

// Comments returns the active ticket's comments in host order. Comment text
// may contain markup.
func (c *Client) Comments(ctx context.Context) ([]model.Comment, error) {
	_, comments, err := c.TicketComments(ctx)
	return comments, err
}

// TicketComments returns the active ticket's comments together with the
// ticket id the host read them for. The id is 0 when the host does not
// report it alongside the comments.
func (c *Client) TicketComments(ctx context.Context) (int64, []model.Comment, error) {
	payload, err := c.host.Get(ctx, KeyTicketComments)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: get %s: %w", ErrRetrieval, KeyTicketComments, err)
	}
	raw, ok := payload[KeyTicketComments]
	if !ok {
		return 0, nil, fmt.Errorf("%w: payload has no %q", ErrRetrieval, KeyTicketComments)
	}

	var wire []hostComment
	if err := json.Unmarshal(raw, &wire); err != nil {
		return 0, nil, fmt.Errorf("%w: decode comments: %w", ErrRetrieval, err)
	}

	var id int64
	if rawID, ok := payload[KeyTicketID]; ok {
		if id, err = ParseTicketID(rawID); err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
		}
	}

	comments := make([]model.Comment, len(wire))
	for i, w := range wire {
		comments[i] = model.Comment{ID: w.ID, Text: w.Value}
	}
	return id, comments, nil
}

// CommentTexts returns only the bodies of the active ticket's comments.
func (c *Client) CommentTexts(ctx context.Context) ([]string, error) {
	comments, err := c.Comments(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(comments))
	for i, cm := range comments {
		texts[i] = cm.Text
	}
	return texts, nil
}

// RedactPath returns the API path of the redaction endpoint for a comment.
func RedactPath(ticketID, commentID int64) string {
	return fmt.Sprintf("/api/v2/tickets/%d/comments/%d/redact.json", ticketID, commentID)
}

// RequestRedaction asks the host to redact the exact literal text within a
// comment. It returns an error wrapping ErrNotFound when the host reports
// that text is absent from the comment, and one wrapping ErrRedaction for
// every other failure.
func (c *Client) RequestRedaction(ctx context.Context, ticketID, commentID int64, text string) error {
	body, err := json.Marshal(redactBody{Text: text})
	if err != nil {
		return fmt.Errorf("%w: encode body: %w", ErrRedaction, err)
	}

	_, err = c.host.Request(ctx, RequestOptions{
		URL:         RedactPath(ticketID, commentID),
		Method:      http.MethodPut,
		ContentType: "application/json",
		Body:        body,
	})
	if err == nil {
		c.logger.Debug("redaction accepted",
			"ticket_id", ticketID,
			"comment_id", commentID,
		)
		return nil
	}

	if isNotFound(err) {
		return fmt.Errorf("%w: ticket %d comment %d: %w", ErrNotFound, ticketID, commentID, err)
	}
	return fmt.Errorf("%w: ticket %d comment %d: %w", ErrRedaction, ticketID, commentID, err)
}

// Notify shows message to the user through the host.
func (c *Client) Notify(ctx context.Context, message string) error {
	if err := c.host.Notify(ctx, message); err != nil {
		c.logger.Warn("notification failed", "error", err)
		return err
	}
	return nil
}

// get fetches key from the host and returns its raw value.
func (c *Client) get(ctx context.Context, key string) (json.RawMessage, error) {
	payload, err := c.host.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrRetrieval, key, err)
	}

	raw, ok := payload[key]
	if !ok {
		return nil, fmt.Errorf("%w: payload has no %q", ErrRetrieval, key)
	}
	return raw, nil
}

// isNotFound reports whether a host error means the redaction text was not
// present. Zendesk answers 404 for an unknown comment and 422 when the text
// does not occur in it.
func isNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusUnprocessableEntity
}
