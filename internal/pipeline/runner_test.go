package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/ticket"
	"github.com/nao1215/piiscrub/internal/ticket/tickettest"
)

// blockingHost blocks Get until release is closed.
type blockingHost struct {
	*tickettest.Host
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHost) Get(ctx context.Context, key string) (ticket.Payload, error) {
	if key == ticket.KeyTicketID {
		close(h.entered)
		<-h.release
	}
	return h.Host.Get(ctx, key)
}

// TestRunnerGuard tests that overlapping runs are rejected.
func TestRunnerGuard(t *testing.T) {
	t.Parallel()

	host := &blockingHost{
		Host:    tickettest.New(1, model.Comment{ID: 1, Text: "John"}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := newRunner(host, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Redact(context.Background(), "John")
		done <- err
	}()

	<-host.entered
	if !r.Running() {
		t.Error("expected runner to report running")
	}

	report, err := r.Redact(context.Background(), "John")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if report != nil {
		t.Error("expected no report for a rejected run")
	}

	close(host.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if r.Running() {
		t.Error("expected runner to be idle")
	}

	// The guard is released, so a new run is accepted.
	host.entered = make(chan struct{})
	host.release = make(chan struct{})
	close(host.release)
	if _, err := r.Redact(context.Background(), "John"); err != nil {
		t.Errorf("expected second run to be accepted, got %v", err)
	}
}

// TestRunnerReportJSON tests that a finished report never carries comment
// text.
func TestRunnerReportJSON(t *testing.T) {
	t.Parallel()

	host := tickettest.New(1, model.Comment{ID: 1, Text: "secret comment about John"})
	report, err := newRunner(host, nil, WithNotify(false)).Redact(context.Background(), "John")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["comments"]; ok {
		t.Error("comments must not be serialised")
	}
	if decoded["state"] != "done" {
		t.Errorf("expected state done, got %v", decoded["state"])
	}
}
