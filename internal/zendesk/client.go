package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nao1215/piiscrub/internal/ticket"
)

const (
	// DefaultTimeout is the per-request timeout of the default HTTP client.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// pageSize is the cursor pagination page size for comment listing.
	pageSize = 100

	// DefaultMaxPages bounds comment pagination so a misbehaving server
	// cannot keep the client looping.
	DefaultMaxPages = 500

	// maxErrorBody is how much of an error response is kept in StatusError.
	maxErrorBody = 512
)

// Errors returned by Client.
var (
	// ErrNoActiveTicket is returned when no ticket id has been set in the
	// TicketStore.
	ErrNoActiveTicket = errors.New("no active ticket: set one with --ticket or the sync endpoint")

	// ErrForeignHost is returned when a pagination link points away from the
	// configured instance. Credentials are never sent to another host.
	ErrForeignHost = errors.New("pagination link points to a different host")

	// ErrTooManyPages is returned when a ticket still has more comments
	// after the page limit. A partial comment list is never returned.
	ErrTooManyPages = errors.New("comment pagination exceeded the page limit")

	// ErrInvalidBaseURL is returned by NewClient for a malformed base URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: expected https://<subdomain>.zendesk.com")
)

// apiComment is a comment as returned by the Zendesk comments endpoint.
// Body is the plain text form that redaction requests are matched against.
type apiComment struct {
	ID       int64  `json:"id"`
	Body     string `json:"body"`
	HTMLBody string `json:"html_body"`
}

// commentsPage is one page of the comments endpoint.
type commentsPage struct {
	Comments []apiComment `json:"comments"`
	Meta     struct {
		HasMore bool `json:"has_more"`
	} `json:"meta"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// hostComment is the host payload form consumed by ticket.Client.
type hostComment struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

// Client is a ticket.Host backed by the Zendesk REST API.
type Client struct {
	// baseURL is the instance root, e.g. https://acme.zendesk.com.
	baseURL *url.URL

	// store holds the active ticket id.
	store *TicketStore

	// email and token are the API token credentials.
	email string
	token string

	// httpClient performs the requests.
	httpClient *http.Client

	// userAgent is sent with every request.
	userAgent string

	// maxBodySize limits response body reads.
	maxBodySize int64

	// maxPages limits how many comment pages are read per ticket.
	maxPages int

	// logger receives notifications and request diagnostics.
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the agent email and API token.
func WithCredentials(email, token string) Option {
	return func(c *Client) {
		c.email = email
		c.token = token
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize sets the response body read limit.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithMaxPages sets how many comment pages are read before giving up.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the instance at baseURL. The store supplies
// the active ticket id for Get.
func NewClient(baseURL string, store *TicketStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidBaseURL
	}
	u.Path = ""
	u.RawQuery = ""

	if store == nil {
		store = &TicketStore{}
	}

	c := &Client{
		baseURL:     u,
		store:       store,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		maxBodySize: DefaultMaxBodySize,
		maxPages:    DefaultMaxPages,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Store returns the client's TicketStore.
func (c *Client) Store() *TicketStore {
	return c.store
}

// Get implements ticket.Host. The active ticket id is read once per call, and
// a ticket.comments payload also carries that id under ticket.id.
func (c *Client) Get(ctx context.Context, key string) (ticket.Payload, error) {
	id, ok := c.store.Get()
	if !ok {
		return nil, ErrNoActiveTicket
	}

	rawID := json.RawMessage(strconv.FormatInt(id, 10))
	switch key {
	case ticket.KeyTicketID:
		return ticket.Payload{key: rawID}, nil

	case ticket.KeyTicketComments:
		comments, err := c.listComments(ctx, id)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(comments)
		if err != nil {
			return nil, fmt.Errorf("encode comments: %w", err)
		}
		return ticket.Payload{key: data, ticket.KeyTicketID: rawID}, nil

	default:
		return nil, fmt.Errorf("unsupported key %q", key)
	}
}

// Request implements ticket.Host. opts.URL is resolved against the base URL.
func (c *Client) Request(ctx context.Context, opts ticket.RequestOptions) (*ticket.Response, error) {
	ref, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse request URL: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)
	if target.Host != c.baseURL.Host {
		return nil, ErrForeignHost
	}

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	return c.do(req)
}

// Notify implements ticket.Host. A server-side process has no toast UI, so
// notifications go to the log at Info level.
func (c *Client) Notify(_ context.Context, message string) error {
	c.logger.Info("notification", "message", message)
	return nil
}

// listComments reads every comment of a ticket, following cursor links.
func (c *Client) listComments(ctx context.Context, ticketID int64) ([]hostComment, error) {
	next := c.baseURL.ResolveReference(&url.URL{
		Path:     fmt.Sprintf("/api/v2/tickets/%d/comments.json", ticketID),
		RawQuery: "page[size]=" + strconv.Itoa(pageSize),
	}).String()

	comments := make([]hostComment, 0)
	for page := 0; next != ""; page++ {
		if page == c.maxPages {
			return nil, fmt.Errorf("%w: ticket %d has more than %d pages", ErrTooManyPages, ticketID, c.maxPages)
		}

		u, err := url.Parse(next)
		if err != nil {
			return nil, fmt.Errorf("parse pagination link: %w", err)
		}
		if u.Host != c.baseURL.Host {
			return nil, ErrForeignHost
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}

		var p commentsPage
		if err := json.Unmarshal(resp.Body, &p); err != nil {
			return nil, fmt.Errorf("decode comments page: %w", err)
		}
		for _, ac := range p.Comments {
			text := ac.Body
			if text == "" {
				text = ac.HTMLBody
			}
			comments = append(comments, hostComment{ID: ac.ID, Value: text})
		}

		c.logger.Debug("fetched comments page",
			"ticket_id", ticketID,
			"page", page+1,
			"count", len(p.Comments),
		)

		next = ""
		if p.Meta.HasMore {
			next = p.Links.Next
		}
	}

	return comments, nil
}

// do sends req with authentication and reads the response.
func (c *Client) do(req *http.Request) (*ticket.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.email != "" {
		req.SetBasicAuth(c.email+"/token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := string(data)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &ticket.StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	return &ticket.Response{StatusCode: resp.StatusCode, Body: data}, nil
}
