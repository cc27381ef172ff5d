package model

import (
	"time"

	"github.com/google/uuid"
)

// RunKind identifies which workflow produced a ScrubReport.
type RunKind string

const (
	// RunDetect is a detection run: comments are read and entities detected.
	RunDetect RunKind = "detect"

	// RunRedact is a redaction run: approved entities are matched and redacted.
	RunRedact RunKind = "redact"
)

// Outcome is the result of a single redaction request.
type Outcome string

const (
	// OutcomeRedacted means the host accepted the redaction.
	OutcomeRedacted Outcome = "redacted"

	// OutcomeNotFound means the host reported that the text is not in the
	// comment. It is expected and does not fail the run.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeFailed means the request failed for any other reason.
	OutcomeFailed Outcome = "failed"
)

// RedactionResult is the outcome of one RedactionRequest.
type RedactionResult struct {
	Request RedactionRequest `json:"request"`
	Outcome Outcome          `json:"outcome"`

	// Error is the failure message for OutcomeNotFound and OutcomeFailed.
	Error string `json:"error,omitempty"`
}

// ScrubReport is the result of one workflow run against one ticket.
// Steps fill it in as the run progresses; it is the only state that a run
// carries between steps.
type ScrubReport struct {
	// RunID uniquely identifies the run. It is also written to the audit
	// database.
	RunID string `json:"run_id"`

	// Kind is the workflow that produced the report.
	Kind RunKind `json:"kind"`

	// TicketID is the ticket the run operated on. Zero until the context
	// has been fetched.
	TicketID int64 `json:"ticket_id"`

	// DateProcessed is when the run started.
	DateProcessed time.Time `json:"date_processed"`

	// State is the workflow state the run reached.
	State State `json:"state"`

	// Comments are the comments read from the host. They hold raw PII and
	// are never serialised.
	Comments []Comment `json:"-"`

	// CommentCount is len(Comments), kept for serialisation.
	CommentCount int `json:"comment_count"`

	// Model is the detection backend used by a detect run.
	Model string `json:"model,omitempty"`

	// Entities are the detected entities of a detect run, deduplicated, in
	// order of first occurrence.
	Entities []Entity `json:"entities,omitempty"`

	// Rendered is the display form of Entities: their texts joined with the
	// display delimiter. A redact run takes this string (possibly edited by
	// the user) as its input.
	Rendered string `json:"rendered,omitempty"`

	// Approved are the entity strings a redact run was asked to redact.
	Approved []string `json:"approved,omitempty"`

	// Matches are the (comment, entity) pairs found by a redact run.
	Matches []Match `json:"matches,omitempty"`

	// Results hold one entry per issued redaction request.
	Results []RedactionResult `json:"results,omitempty"`

	// PerformedSteps lists the pipeline steps that completed.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Cancelled is true if the run stopped because its context ended.
	Cancelled bool `json:"cancelled"`

	// Error is the error that ended the run, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialisation.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewScrubReport creates a report for a new run of the given kind.
func NewScrubReport(kind RunKind) *ScrubReport {
	return &ScrubReport{
		RunID:         uuid.NewString(),
		Kind:          kind,
		DateProcessed: time.Now(),
		State:         StateIdle,
		Results:       make([]RedactionResult, 0),
	}
}

// SetComments stores the fetched comments and updates CommentCount.
func (r *ScrubReport) SetComments(comments []Comment) {
	r.Comments = comments
	r.CommentCount = len(comments)
}

// EntityTexts returns the text of every detected entity, in report order.
func (r *ScrubReport) EntityTexts() []string {
	texts := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		texts[i] = e.Text
	}
	return texts
}

// AddResult appends the outcome of a redaction request.
func (r *ScrubReport) AddResult(res RedactionResult) {
	r.Results = append(r.Results, res)
}

// Count returns the number of results with the given outcome.
func (r *ScrubReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Fail records err as the error that ended the run.
func (r *ScrubReport) Fail(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// Succeeded reports whether the run reached Done without an error.
func (r *ScrubReport) Succeeded() bool {
	return r.State == StateDone && r.Error == nil
}
