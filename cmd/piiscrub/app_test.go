package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/config"
	"github.com/nao1215/piiscrub/internal/detect"
	plog "github.com/nao1215/piiscrub/internal/log"
	"github.com/nao1215/piiscrub/internal/model"
)

// writeConfigFile writes a configuration file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".piiscrub")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// parseCommand finds the subcommand named by args[0] under a fresh root
// and parses the remaining arguments as its flags.
func parseCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	root := NewRootCmd()
	cmd, rest, err := root.Find(args)
	if err != nil {
		t.Fatalf("failed to find command %v: %v", args, err)
	}
	if err := cmd.ParseFlags(rest); err != nil {
		t.Fatalf("failed to parse flags %v: %v", rest, err)
	}
	return cmd
}

const testConfig = `
zendesk:
  url: "https://acme.zendesk.com"
  email: "agent@acme.com"
  api_token_env: "PIISCRUB_TEST_TOKEN_UNSET"
detection:
  model: "comprehend-pii"
  threshold: 0.5
redaction:
  delimiter: ";"
`

// TestBuildConfig tests layering of defaults, file and flags.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, testConfig)

	t.Run("file values are kept when flags are not set", func(t *testing.T) {
		t.Parallel()

		cmd := parseCommand(t, "detect", "--config", path, "-t", "42")
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.ZendeskURL != "https://acme.zendesk.com" {
			t.Errorf("unexpected URL %q", cfg.ZendeskURL)
		}
		if cfg.Model != detect.ModelComprehendPII {
			t.Errorf("expected model from file, got %v", cfg.Model)
		}
		if cfg.Threshold != 0.5 {
			t.Errorf("expected threshold 0.5, got %v", cfg.Threshold)
		}
		if len(cfg.TicketIDs) != 1 || cfg.TicketIDs[0] != 42 {
			t.Errorf("expected tickets [42], got %v", cfg.TicketIDs)
		}
		if cfg.BatchSize != config.DefaultBatchSize {
			t.Errorf("expected default batch size, got %d", cfg.BatchSize)
		}
	})

	t.Run("flags override the file", func(t *testing.T) {
		t.Parallel()

		cmd := parseCommand(t, "detect", "--config", path,
			"-t", "1,2", "-t", "3",
			"--threshold", "0.75",
			"--model", "comprehend",
			"--entity-type", "NAME,EMAIL",
			"-u", "https://other.zendesk.com",
			"-b", "8",
			"--markdown",
			"-o", "out.md",
			"--audit",
			"-v",
		)
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := cfg.TicketIDs; len(got) != 3 || got[0] != 1 || got[2] != 3 {
			t.Errorf("expected tickets [1 2 3], got %v", got)
		}
		if cfg.Threshold != 0.75 {
			t.Errorf("expected threshold 0.75, got %v", cfg.Threshold)
		}
		if cfg.Model != detect.ModelComprehend {
			t.Errorf("expected model comprehend, got %v", cfg.Model)
		}
		if len(cfg.EntityTypes) != 2 || cfg.EntityTypes[1] != "EMAIL" {
			t.Errorf("expected entity types [NAME EMAIL], got %v", cfg.EntityTypes)
		}
		if cfg.ZendeskURL != "https://other.zendesk.com" {
			t.Errorf("expected URL from flag, got %q", cfg.ZendeskURL)
		}
		if cfg.BatchSize != 8 {
			t.Errorf("expected batch size 8, got %d", cfg.BatchSize)
		}
		if !cfg.MarkdownReport || cfg.ReportFile != "out.md" {
			t.Errorf("expected markdown report to out.md, got %v %q", cfg.MarkdownReport, cfg.ReportFile)
		}
		if !cfg.Audit {
			t.Error("expected audit to be enabled")
		}
		if !cfg.Verbose {
			t.Error("expected verbose from the global flag")
		}
	})

	t.Run("redact delimiter flag overrides the file", func(t *testing.T) {
		t.Parallel()

		cmd := parseCommand(t, "redact", "--config", path, "-d", "|")
		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Delimiter != "|" {
			t.Errorf("expected delimiter |, got %q", cfg.Delimiter)
		}
	})

	t.Run("unknown model is an error", func(t *testing.T) {
		t.Parallel()

		cmd := parseCommand(t, "detect", "--config", path, "--model", "bogus")
		if _, err := buildConfig(cmd); !errors.Is(err, detect.ErrUnknownModel) {
			t.Errorf("expected ErrUnknownModel, got %v", err)
		}
	})

	t.Run("missing explicit config file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := parseCommand(t, "detect", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		if _, err := buildConfig(cmd); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestLoadConfig_Validation tests that loadConfig rejects invalid settings.
func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, testConfig)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{
			name:    "conflicting report formats",
			args:    []string{"detect", "--config", path, "--json", "--markdown"},
			wantErr: config.ErrConflictingReportFormats,
		},
		{
			name:    "threshold above one",
			args:    []string{"detect", "--config", path, "--threshold", "1.5"},
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name:    "non-positive ticket",
			args:    []string{"redact", "--config", path, "--ticket=-4"},
			wantErr: config.ErrInvalidTicketID,
		},
		{
			name:    "empty delimiter",
			args:    []string{"redact", "--config", path, "--delimiter="},
			wantErr: config.ErrEmptyDelimiter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadConfig(parseCommand(t, tt.args...))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestInheritedFlags tests global flag lookup on a standalone command.
func TestInheritedFlags(t *testing.T) {
	t.Parallel()

	cmd := NewDetectCmd()
	if inheritedBool(cmd, "verbose") {
		t.Error("expected false for an undefined flag")
	}
	if got := inheritedString(cmd, "config"); got != "" {
		t.Errorf("expected empty string for an undefined flag, got %q", got)
	}

	root := parseCommand(t, "detect", "-v", "--config", "x.yaml")
	if !inheritedBool(root, "verbose") {
		t.Error("expected verbose from the root flag")
	}
	if got := inheritedString(root, "config"); got != "x.yaml" {
		t.Errorf("expected x.yaml, got %q", got)
	}
}

// TestReadApproved tests reading the approved entity string.
func TestReadApproved(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stdin   string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "argument is used as is", args: []string{"John, 555-1234"}, want: "John, 555-1234"},
		{name: "stdin single line", stdin: "John, 555-1234\n", want: "John, 555-1234"},
		{name: "dash reads stdin", args: []string{"-"}, stdin: "Jane", want: "Jane"},
		{name: "stdin lines are joined", stdin: "John, Jane\n\n  555-1234  \n", want: "John, Jane,555-1234"},
		{name: "blank argument", args: []string{"  "}, wantErr: true},
		{name: "empty stdin", stdin: "\n \n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := readApproved(strings.NewReader(tt.stdin), tt.args, ",")
			if tt.wantErr {
				if !errors.Is(err, errNoApprovedEntities) {
					t.Errorf("expected errNoApprovedEntities, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func detectReport(ticketID int64, entities ...string) *model.ScrubReport {
	r := model.NewScrubReport(model.RunDetect)
	r.TicketID = ticketID
	r.State = model.StateDone
	for _, e := range entities {
		r.Entities = append(r.Entities, model.Entity{Text: e, Type: "NAME", Score: 0.99})
	}
	r.Rendered = strings.Join(entities, ", ")
	return r
}

// TestOutputReports tests report output selection and failure reporting.
func TestOutputReports(t *testing.T) {
	t.Parallel()

	t.Run("simple report to stdout with summaries", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cfg := config.NewConfig()
		reports := []*model.ScrubReport{detectReport(1, "John"), nil, detectReport(2)}

		if err := outputReports(cfg, &buf, reports); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "PIISCRUB REPORT") {
			t.Errorf("expected simple report header, got %q", out)
		}
		if !strings.Contains(out, "ticket 1: ") || !strings.Contains(out, "ticket 2: ") {
			t.Errorf("expected one summary line per report, got %q", out)
		}
	})

	t.Run("json report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cfg := config.NewConfig()
		cfg.JSONReport = true

		if err := outputReports(cfg, &buf, []*model.ScrubReport{detectReport(5, "Jane")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got struct {
			Version string `json:"version"`
			Report  struct {
				TicketID int64 `json:"ticket_id"`
			} `json:"report"`
		}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
		}
		if got.Report.TicketID != 5 || got.Version == "" {
			t.Errorf("unexpected JSON report %+v", got)
		}
	})

	t.Run("report file is created owner-only with a summary on stdout", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "nested", "report.md")

		var stdout bytes.Buffer
		if err := outputReports(cfg, &stdout, []*model.ScrubReport{detectReport(9, "John")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out := stdout.String(); !strings.HasPrefix(out, "ticket 9: ") || strings.Contains(out, "John") {
			t.Errorf("expected only the summary line on stdout, got %q", out)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# piiscrub Report") {
			t.Errorf("expected markdown report, got %q", content)
		}

		if runtime.GOOS != "windows" {
			info, err := os.Stat(cfg.ReportFile)
			if err != nil {
				t.Fatalf("failed to stat report: %v", err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("expected permissions 0600, got %o", perm)
			}
		}
	})

	t.Run("failed runs are returned as errors", func(t *testing.T) {
		t.Parallel()

		failed := detectReport(3)
		failed.Fail(detect.ErrDetection)

		var buf bytes.Buffer
		err := outputReports(config.NewConfig(), &buf, []*model.ScrubReport{detectReport(1), failed})
		if !errors.Is(err, detect.ErrDetection) {
			t.Errorf("expected ErrDetection, got %v", err)
		}
		if !strings.Contains(err.Error(), "ticket 3") {
			t.Errorf("expected error to name the ticket, got %v", err)
		}
	})
}

// TestWriteRendered tests the entities-only output of detect.
func TestWriteRendered(t *testing.T) {
	t.Parallel()

	failed := detectReport(2, "Jane")
	failed.Fail(detect.ErrDetection)

	var buf bytes.Buffer
	writeRendered(&buf, []*model.ScrubReport{detectReport(1, "John", "555-1234"), failed, nil})

	if got := buf.String(); got != "John, 555-1234\n" {
		t.Errorf("got %q", got)
	}
}

// TestProgressFunc tests batch progress lines.
func TestProgressFunc(t *testing.T) {
	t.Parallel()

	if progressFunc(io.Discard, 1) != nil {
		t.Error("expected no progress callback for a single ticket")
	}

	var buf bytes.Buffer
	fn := progressFunc(&buf, 2)
	fn(detectReport(10, "John"), 1)
	fn(detectReport(11), 0)

	out := buf.String()
	if !strings.Contains(out, "[1/2] ticket 10: Detection done: 1 entities found") {
		t.Errorf("unexpected progress output %q", out)
	}
	if !strings.Contains(out, "[2/2] ticket 11:") {
		t.Errorf("unexpected progress output %q", out)
	}
}

// fakeZendesk is an in-memory Zendesk comments and redaction API.
type fakeZendesk struct {
	mu       sync.Mutex
	comments map[int64][]fakeComment
	redacted []string
}

type fakeComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

func (z *fakeZendesk) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/tickets/{id}/comments.json", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

		z.mu.Lock()
		comments, ok := z.comments[id]
		z.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"comments": comments,
			"meta":     map[string]bool{"has_more": false},
		})
	})
	mux.HandleFunc("PUT /api/v2/tickets/{id}/comments/{cid}/redact.json", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		cid, _ := strconv.ParseInt(r.PathValue("cid"), 10, 64)

		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}

		z.mu.Lock()
		defer z.mu.Unlock()
		for i, c := range z.comments[id] {
			if c.ID == cid && strings.Contains(c.Body, body.Text) {
				z.comments[id][i].Body = strings.ReplaceAll(c.Body, body.Text, "▇▇▇")
				z.redacted = append(z.redacted, r.PathValue("id")+"/"+r.PathValue("cid")+":"+body.Text)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"comment":{}}`)
				return
			}
		}
		http.Error(w, `{"error":"RecordNotFound"}`, http.StatusNotFound)
	})
	return mux
}

// TestRunRedact runs the redact workflow end to end against a fake
// Zendesk with the audit database enabled.
func TestRunRedact(t *testing.T) {
	t.Parallel()

	z := &fakeZendesk{comments: map[int64][]fakeComment{
		7: {
			{ID: 1, Body: "Call John Smith"},
			{ID: 2, Body: "His number is 555-1234"},
		},
		8: {
			{ID: 3, Body: "No personal data here"},
		},
	}}
	srv := httptest.NewServer(z.handler())
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.ZendeskURL = srv.URL
	cfg.Email = "agent@acme.com"
	cfg.APIToken = "token"
	cfg.TicketIDs = []int64{7, 8, 9}
	cfg.BatchSize = 2
	cfg.Audit = true
	cfg.DBDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	ctx := context.Background()
	logger := plog.New(io.Discard, plog.Options{})

	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	var progress bytes.Buffer
	reports, err := runRedact(ctx, a, "John Smith, 555-1234", &progress)
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	t.Run("matched entities are redacted", func(t *testing.T) {
		r := reports[0]
		if !r.Succeeded() {
			t.Fatalf("expected success, got %v", r.Error)
		}
		if got := r.Count(model.OutcomeRedacted); got != 2 {
			t.Errorf("expected 2 redactions, got %d", got)
		}

		z.mu.Lock()
		defer z.mu.Unlock()
		if len(z.redacted) != 2 {
			t.Errorf("expected 2 requests at the server, got %v", z.redacted)
		}
	})

	t.Run("ticket without matches issues no requests", func(t *testing.T) {
		r := reports[1]
		if !r.Succeeded() || len(r.Results) != 0 {
			t.Errorf("expected an empty successful run, got %+v", r)
		}
	})

	t.Run("unknown ticket fails with a retrieval error", func(t *testing.T) {
		r := reports[2]
		if r.Succeeded() || r.TicketID != 9 {
			t.Errorf("expected ticket 9 to fail, got %+v", r)
		}
		if err := runErrors(reports); err == nil || !strings.Contains(err.Error(), "ticket 9") {
			t.Errorf("expected error for ticket 9, got %v", err)
		}
	})

	t.Run("every run is audited", func(t *testing.T) {
		runs, err := a.db.ListRuns(ctx, 0, 0)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("expected 3 audited runs, got %d", len(runs))
		}

		ok, err := a.db.WasRedacted(ctx, 7, 1, "John Smith")
		if err != nil || !ok {
			t.Errorf("expected John Smith to be recorded as redacted, got %v %v", ok, err)
		}
	})

	t.Run("progress is reported per ticket", func(t *testing.T) {
		if got := strings.Count(progress.String(), "\n"); got != 3 {
			t.Errorf("expected 3 progress lines, got %q", progress.String())
		}
	})
}

// TestRunDetect runs the detect workflow end to end with the offline
// pattern backend, so no AWS access is needed.
func TestRunDetect(t *testing.T) {
	t.Parallel()

	z := &fakeZendesk{comments: map[int64][]fakeComment{
		5: {
			{ID: 1, Body: "Write to jane@example.com"},
			{ID: 2, Body: "Server 10.0.0.1 is down, mail jane@example.com"},
		},
	}}
	srv := httptest.NewServer(z.handler())
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.ZendeskURL = srv.URL
	cfg.TicketIDs = []int64{5}
	cfg.Model = detect.ModelPattern
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, plog.New(io.Discard, plog.Options{}), true)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	var progress bytes.Buffer
	reports, err := runDetect(ctx, a, &progress)
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if len(reports) != 1 || !reports[0].Succeeded() {
		t.Fatalf("expected one successful report, got %+v", reports)
	}

	got := reports[0].EntityTexts()
	want := []string{"jane@example.com", "10.0.0.1"}
	if !slices.Equal(got, want) {
		t.Errorf("got entities %q, want %q", got, want)
	}
	if progress.Len() != 0 {
		t.Errorf("a single ticket reports no progress, got %q", progress.String())
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if len(z.redacted) != 0 {
		t.Errorf("detect must not redact, got %v", z.redacted)
	}
}
