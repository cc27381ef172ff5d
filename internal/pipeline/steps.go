package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/piiscrub/internal/detect"
	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/result"
	"github.com/nao1215/piiscrub/internal/textutil"
	"github.com/nao1215/piiscrub/internal/ticket"
)

const (
	// DefaultDelimiter separates approved entities in redaction input.
	DefaultDelimiter = ","

	// DisplayDelimiter joins detected entities for display.
	DisplayDelimiter = ", "

	// commentSeparator joins stripped comment texts before detection.
	commentSeparator = " "
)

// FetchContextStep reads the active ticket id and its comments from the
// host. Both reads run concurrently; either failing fails the step, and so
// does a comments payload reporting a different ticket than the id read.
type FetchContextStep struct {
	client *ticket.Client
	logger *slog.Logger
}

// FetchContextStepOption configures a FetchContextStep.
type FetchContextStepOption func(*FetchContextStep)

// WithFetchLogger sets a custom logger for the fetch step.
func WithFetchLogger(logger *slog.Logger) FetchContextStepOption {
	return func(s *FetchContextStep) {
		s.logger = logger
	}
}

// NewFetchContextStep creates a step reading context through client.
func NewFetchContextStep(client *ticket.Client, opts ...FetchContextStepOption) *FetchContextStep {
	s := &FetchContextStep{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ticketComments pairs comments with the ticket id the host read them for.
type ticketComments struct {
	id       int64
	comments []model.Comment
}

// Name returns the step name.
func (s *FetchContextStep) Name() string {
	return "fetch_context"
}

// Do executes the fetch step.
func (s *FetchContextStep) Do(ctx context.Context, report *model.ScrubReport) error {
	report.State = model.StateFetchingContext

	idCh := result.Go[int64](ctx, s.client.TicketID)
	commentsCh := result.Go[ticketComments](ctx, func(ctx context.Context) (ticketComments, error) {
		id, comments, err := s.client.TicketComments(ctx)
		return ticketComments{id: id, comments: comments}, err
	})

	id, idErr := result.Wait(ctx, idCh).Unpack()
	tc, commentsErr := result.Wait(ctx, commentsCh).Unpack()
	if err := errors.Join(idErr, commentsErr); err != nil {
		return err
	}
	if tc.id != 0 && tc.id != id {
		return fmt.Errorf("%w: %w: read ticket %d, comments of ticket %d",
			ticket.ErrRetrieval, ticket.ErrTicketChanged, id, tc.id)
	}
	comments := tc.comments

	report.TicketID = id
	report.SetComments(comments)

	s.logger.Debug("context fetched",
		"ticket_id", id,
		"comment_count", len(comments),
	)
	return nil
}

// DetectStep strips the markup of every comment, joins them with a space
// and runs entity detection on the result.
type DetectStep struct {
	detector *detect.Detector
	opts     detect.Options
	logger   *slog.Logger
}

// DetectStepOption configures a DetectStep.
type DetectStepOption func(*DetectStep)

// WithDetectLogger sets a custom logger for the detect step.
func WithDetectLogger(logger *slog.Logger) DetectStepOption {
	return func(s *DetectStep) {
		s.logger = logger
	}
}

// NewDetectStep creates a detection step.
func NewDetectStep(detector *detect.Detector, opts detect.Options, stepOpts ...DetectStepOption) *DetectStep {
	s := &DetectStep{
		detector: detector,
		opts:     opts,
		logger:   slog.Default(),
	}
	for _, opt := range stepOpts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *DetectStep) Name() string {
	return "detect"
}

// Do executes the detect step.
func (s *DetectStep) Do(ctx context.Context, report *model.ScrubReport) error {
	report.State = model.StateDetecting

	m := s.opts.Model
	if m == 0 {
		m = detect.DefaultModel
	}
	report.Model = m.String()

	texts := make([]string, len(report.Comments))
	for i, c := range report.Comments {
		texts[i] = textutil.StripMarkup(c.Text)
	}

	entities, err := s.detector.Analyze(ctx, textutil.Join(texts, commentSeparator), s.opts)
	if err != nil {
		return err
	}

	report.Entities = entities
	report.Rendered = textutil.Join(report.EntityTexts(), DisplayDelimiter)

	s.logger.Debug("detection finished",
		"ticket_id", report.TicketID,
		"detected", len(entities),
	)
	return nil
}

// Match returns a (comment, entity) pair for every entity that occurs
// literally in a comment. Comments are visited in order and, within a
// comment, entities in the order given, so an entity listed twice yields
// two pairs.
func Match(comments []model.Comment, entities []string) []model.Match {
	matches := make([]model.Match, 0)
	for _, c := range comments {
		for _, e := range entities {
			if c.Contains(e) {
				matches = append(matches, model.Match{CommentID: c.ID, Entity: e})
			}
		}
	}
	return matches
}

// MatchStep splits the approved entity string and matches the entities
// against the fetched comments.
type MatchStep struct {
	approved  string
	delimiter string
}

// NewMatchStep creates a match step for the approved entity string. An
// empty delimiter means DefaultDelimiter.
func NewMatchStep(approved, delimiter string) *MatchStep {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &MatchStep{approved: approved, delimiter: delimiter}
}

// Name returns the step name.
func (s *MatchStep) Name() string {
	return "match"
}

// Do executes the match step.
func (s *MatchStep) Do(_ context.Context, report *model.ScrubReport) error {
	report.State = model.StateMatching
	report.Approved = textutil.SplitTrimmed(s.approved, s.delimiter)
	report.Matches = Match(report.Comments, report.Approved)
	return nil
}

// RedactStep issues one redaction request per match. A request whose text
// is no longer present is logged and recorded, and the step continues. Any
// other failure stops the remaining requests and fails the step.
type RedactStep struct {
	client      *ticket.Client
	concurrency int
	logger      *slog.Logger
}

// RedactStepOption configures a RedactStep.
type RedactStepOption func(*RedactStep)

// WithRedactConcurrency sets how many requests may be in flight at once.
// The default is 1, which issues requests sequentially in match order.
func WithRedactConcurrency(n int) RedactStepOption {
	return func(s *RedactStep) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRedactLogger sets a custom logger for the redact step.
func WithRedactLogger(logger *slog.Logger) RedactStepOption {
	return func(s *RedactStep) {
		s.logger = logger
	}
}

// NewRedactStep creates a redaction step.
func NewRedactStep(client *ticket.Client, opts ...RedactStepOption) *RedactStep {
	s := &RedactStep{
		client:      client,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *RedactStep) Name() string {
	return "redact"
}

// Do executes the redact step.
func (s *RedactStep) Do(ctx context.Context, report *model.ScrubReport) error {
	report.State = model.StateRequesting

	outcomes := make([]*model.RedactionResult, len(report.Matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, m := range report.Matches {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			req := model.RedactionRequest{
				TicketID:  report.TicketID,
				CommentID: m.CommentID,
				Text:      m.Entity,
			}
			res := result.Handle(gctx, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.client.RequestRedaction(ctx, req.TicketID, req.CommentID, req.Text)
			})

			switch {
			case res.OK():
				outcomes[i] = &model.RedactionResult{Request: req, Outcome: model.OutcomeRedacted}
				return nil

			case errors.Is(res.Err, ticket.ErrNotFound):
				s.logger.Warn("redaction target not found",
					"ticket_id", req.TicketID,
					"comment_id", req.CommentID,
					"error", res.Err,
				)
				outcomes[i] = &model.RedactionResult{
					Request: req,
					Outcome: model.OutcomeNotFound,
					Error:   res.Err.Error(),
				}
				return nil

			default:
				outcomes[i] = &model.RedactionResult{
					Request: req,
					Outcome: model.OutcomeFailed,
					Error:   res.Err.Error(),
				}
				return res.Err
			}
		})
	}
	err := g.Wait()

	for _, o := range outcomes {
		if o != nil {
			report.AddResult(*o)
		}
	}

	s.logger.Debug("redaction requests finished",
		"ticket_id", report.TicketID,
		"issued", len(report.Results),
		"redacted", report.Count(model.OutcomeRedacted),
		"not_found", report.Count(model.OutcomeNotFound),
	)
	if err != nil {
		return fmt.Errorf("redact: %w", err)
	}
	return nil
}

// NotifyStep reports the outcome of a run to the user through the host.
// It is intended to run as a finalizer.
type NotifyStep struct {
	client *ticket.Client
}

// NewNotifyStep creates a notification step.
func NewNotifyStep(client *ticket.Client) *NotifyStep {
	return &NotifyStep{client: client}
}

// Name returns the step name.
func (s *NotifyStep) Name() string {
	return "notify"
}

// Do executes the notify step.
func (s *NotifyStep) Do(ctx context.Context, report *model.ScrubReport) error {
	return s.client.Notify(ctx, Message(report))
}

// Message returns the user-visible summary of a finished run.
func Message(report *model.ScrubReport) string {
	if report.Error != nil {
		switch report.Kind {
		case model.RunDetect:
			return "Detection failed: " + report.ErrorMessage
		default:
			return "Redaction failed: " + report.ErrorMessage
		}
	}

	switch report.Kind {
	case model.RunDetect:
		return fmt.Sprintf("Detection done: %d entities found", len(report.Entities))
	default:
		if n := report.Count(model.OutcomeNotFound); n > 0 {
			return fmt.Sprintf("Redaction done: %d redacted, %d not found",
				report.Count(model.OutcomeRedacted), n)
		}
		return fmt.Sprintf("Redaction done: %d redacted", report.Count(model.OutcomeRedacted))
	}
}
