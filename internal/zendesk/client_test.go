package zendesk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nao1215/piiscrub/internal/ticket"
)

// TestNewClient tests client construction.
func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("rejects malformed base URL", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{"", "acme.zendesk.com", "://bad"} {
			if _, err := NewClient(raw, nil); !errors.Is(err, ErrInvalidBaseURL) {
				t.Errorf("NewClient(%q): expected ErrInvalidBaseURL, got %v", raw, err)
			}
		}
	})

	t.Run("creates an empty store when none is given", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient("https://acme.zendesk.com", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := c.Store().Get(); ok {
			t.Error("expected no active ticket")
		}
	})
}

// TestClientGet tests keyed payload retrieval.
func TestClientGet(t *testing.T) {
	t.Parallel()

	t.Run("no active ticket", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient("https://acme.zendesk.com", NewTicketStore(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Get(context.Background(), ticket.KeyTicketID); !errors.Is(err, ErrNoActiveTicket) {
			t.Errorf("expected ErrNoActiveTicket, got %v", err)
		}
	})

	t.Run("ticket id comes from the store", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient("https://acme.zendesk.com", NewTicketStore(321))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, err := c.Get(context.Background(), ticket.KeyTicketID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		id, err := ticket.ParseTicketID(p[ticket.KeyTicketID])
		if err != nil || id != 321 {
			t.Errorf("got %d, %v", id, err)
		}
	})

	t.Run("comments follow cursor pagination and prefer plain body", func(t *testing.T) {
		t.Parallel()

		var srvURL string
		var mu sync.Mutex
		var authHeaders []string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			authHeaders = append(authHeaders, r.Header.Get("Authorization"))
			mu.Unlock()

			if r.URL.Path != "/api/v2/tickets/9/comments.json" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page[after]") == "" {
				_, _ = io.WriteString(w, `{
					"comments": [{"id": 1, "body": "Call John Smith", "html_body": "<p>Call <b>John</b> Smith</p>"}],
					"meta": {"has_more": true},
					"links": {"next": "`+srvURL+`/api/v2/tickets/9/comments.json?page[after]=abc"}
				}`)
				return
			}
			_, _ = io.WriteString(w, `{
				"comments": [{"id": 2, "html_body": "<p>html two</p>"}],
				"meta": {"has_more": false},
				"links": {"next": ""}
			}`)
		}))
		defer srv.Close()
		srvURL = srv.URL

		c, err := NewClient(srv.URL, NewTicketStore(9), WithCredentials("agent@example.com", "tok"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		comments, err := ticket.NewClient(c).Comments(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(comments) != 2 {
			t.Fatalf("expected 2 comments, got %d", len(comments))
		}
		if comments[0].Text != "Call John Smith" {
			t.Errorf("expected plain body, got %q", comments[0].Text)
		}
		if comments[1].Text != "<p>html two</p>" {
			t.Errorf("expected html body fallback, got %q", comments[1].Text)
		}

		mu.Lock()
		defer mu.Unlock()
		for _, h := range authHeaders {
			if h == "" {
				t.Error("expected basic auth on every request")
			}
		}
	})

	t.Run("comments payload carries the ticket id it was read for", func(t *testing.T) {
		t.Parallel()

		store := NewTicketStore(9)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			// The agent switches ticket while the comments are in flight.
			store.Replace(10)
			_, _ = io.WriteString(w, `{"comments": [{"id": 1, "body": "hello"}], "meta": {"has_more": false}}`)
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, err := c.Get(context.Background(), ticket.KeyTicketComments)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		id, err := ticket.ParseTicketID(p[ticket.KeyTicketID])
		if err != nil || id != 9 {
			t.Errorf("ticket id = %d, %v, want 9", id, err)
		}

		id, comments, err := ticket.NewClient(c).TicketComments(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != 10 || len(comments) != 1 {
			t.Errorf("got ticket %d with %d comments, want ticket 10 with 1", id, len(comments))
		}
	})

	t.Run("page limit with more pages left is an error", func(t *testing.T) {
		t.Parallel()

		var (
			srvURL string
			mu     sync.Mutex
			pages  int
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			pages++
			mu.Unlock()
			_, _ = io.WriteString(w, `{
				"comments": [{"id": 1, "body": "again"}],
				"meta": {"has_more": true},
				"links": {"next": "`+srvURL+`/api/v2/tickets/9/comments.json?page[after]=more"}
			}`)
		}))
		defer srv.Close()
		srvURL = srv.URL

		c, err := NewClient(srv.URL, NewTicketStore(9), WithMaxPages(2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Get(context.Background(), ticket.KeyTicketComments); !errors.Is(err, ErrTooManyPages) {
			t.Errorf("expected ErrTooManyPages, got %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if pages != 2 {
			t.Errorf("fetched %d pages, want 2", pages)
		}
	})

	t.Run("last page at the limit is not an error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"comments": [{"id": 1, "body": "only"}], "meta": {"has_more": false}}`)
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, NewTicketStore(9), WithMaxPages(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Get(context.Background(), ticket.KeyTicketComments); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("foreign pagination link is refused", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{
				"comments": [],
				"meta": {"has_more": true},
				"links": {"next": "https://evil.example.com/steal"}
			}`)
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, NewTicketStore(9))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Get(context.Background(), ticket.KeyTicketComments); !errors.Is(err, ErrForeignHost) {
			t.Errorf("expected ErrForeignHost, got %v", err)
		}
	})
}

// TestClientRequest tests proxied API requests.
func TestClientRequest(t *testing.T) {
	t.Parallel()

	t.Run("sends method, body and content type", func(t *testing.T) {
		t.Parallel()

		var gotMethod, gotPath, gotType, gotUser string
		var gotBody map[string]string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			gotType = r.Header.Get("Content-Type")
			gotUser, _, _ = r.BasicAuth()
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, `{"comment":{}}`)
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, NewTicketStore(5), WithCredentials("agent@example.com", "tok"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := ticket.NewClient(c).RequestRedaction(context.Background(), 5, 6, "John"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if gotMethod != http.MethodPut {
			t.Errorf("method: got %q", gotMethod)
		}
		if gotPath != "/api/v2/tickets/5/comments/6/redact.json" {
			t.Errorf("path: got %q", gotPath)
		}
		if gotType != "application/json" {
			t.Errorf("content type: got %q", gotType)
		}
		if gotUser != "agent@example.com/token" {
			t.Errorf("basic auth user: got %q", gotUser)
		}
		if gotBody["text"] != "John" {
			t.Errorf("body: got %v", gotBody)
		}
	})

	t.Run("422 maps to not found", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"error":"RecordInvalid"}`)
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, NewTicketStore(5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err = ticket.NewClient(c).RequestRedaction(context.Background(), 5, 6, "John")
		if !errors.Is(err, ticket.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		var se *ticket.StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("expected StatusError 422 in chain, got %v", err)
		}
	})

	t.Run("500 maps to redaction error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, err := NewClient(srv.URL, NewTicketStore(5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err = ticket.NewClient(c).RequestRedaction(context.Background(), 5, 6, "John")
		if !errors.Is(err, ticket.ErrRedaction) {
			t.Errorf("expected ErrRedaction, got %v", err)
		}
	})

	t.Run("absolute URL to another host is refused", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient("https://acme.zendesk.com", NewTicketStore(5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = c.Request(context.Background(), ticket.RequestOptions{
			URL:    "https://evil.example.com/api",
			Method: http.MethodGet,
		})
		if !errors.Is(err, ErrForeignHost) {
			t.Errorf("expected ErrForeignHost, got %v", err)
		}
	})
}

// TestTicketStore tests the active ticket holder.
func TestTicketStore(t *testing.T) {
	t.Parallel()

	s := NewTicketStore(0)
	if _, ok := s.Get(); ok {
		t.Error("expected empty store")
	}

	if prev := s.Replace(10); prev != 0 {
		t.Errorf("expected previous 0, got %d", prev)
	}
	if prev := s.Replace(11); prev != 10 {
		t.Errorf("expected previous 10, got %d", prev)
	}
	if id, ok := s.Get(); !ok || id != 11 {
		t.Errorf("got %d, %v", id, ok)
	}
}
