package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/nao1215/piiscrub/internal/detect"
	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/ticket"
)

// ErrAlreadyRunning is returned when a workflow is started while another
// one is still running on the same Runner.
var ErrAlreadyRunning = errors.New("a workflow is already running")

// Runner runs the detect and redact workflows against one ticketing host,
// one at a time.
type Runner struct {
	client   *ticket.Client
	detector *detect.Detector

	delimiter         string
	redactConcurrency int
	notify            bool
	finalizers        []Step
	logger            *slog.Logger

	running atomic.Bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDelimiter sets the delimiter of the approved entity string.
func WithDelimiter(delim string) RunnerOption {
	return func(r *Runner) {
		if delim != "" {
			r.delimiter = delim
		}
	}
}

// WithRunnerRedactConcurrency sets the number of concurrent redaction
// requests.
func WithRunnerRedactConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.redactConcurrency = n
		}
	}
}

// WithNotify enables or disables the completion notification.
func WithNotify(notify bool) RunnerOption {
	return func(r *Runner) {
		r.notify = notify
	}
}

// WithFinalizers adds steps that run after every workflow, following the
// completion notification.
func WithFinalizers(steps ...Step) RunnerOption {
	return func(r *Runner) {
		r.finalizers = append(r.finalizers, steps...)
	}
}

// WithRunnerLogger sets a custom logger for the runner and its pipelines.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner. detector may be nil if only Redact is used.
func NewRunner(client *ticket.Client, detector *detect.Detector, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:            client,
		detector:          detector,
		delimiter:         DefaultDelimiter,
		redactConcurrency: 1,
		notify:            true,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a workflow is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// DetectPipeline returns the detect workflow: fetch the ticket context and
// detect entities in the comments.
func (r *Runner) DetectPipeline(opts detect.Options) *Pipeline {
	p := New(WithLogger(r.logger))
	p.AddSteps(
		NewFetchContextStep(r.client, WithFetchLogger(r.logger)),
		NewDetectStep(r.detector, opts, WithDetectLogger(r.logger)),
	)
	r.addFinalizers(p)
	return p
}

// RedactPipeline returns the redact workflow for the approved entity
// string: fetch the ticket context, match and request redactions.
func (r *Runner) RedactPipeline(approved string) *Pipeline {
	p := New(WithLogger(r.logger))
	p.AddSteps(
		NewFetchContextStep(r.client, WithFetchLogger(r.logger)),
		NewMatchStep(approved, r.delimiter),
		NewRedactStep(r.client,
			WithRedactConcurrency(r.redactConcurrency),
			WithRedactLogger(r.logger),
		),
	)
	r.addFinalizers(p)
	return p
}

func (r *Runner) addFinalizers(p *Pipeline) {
	if r.notify {
		p.AddFinalizer(NewNotifyStep(r.client))
	}
	for _, f := range r.finalizers {
		p.AddFinalizer(f)
	}
}

// Detect runs the detect workflow. The returned report is non-nil unless
// the error is ErrAlreadyRunning.
func (r *Runner) Detect(ctx context.Context, opts detect.Options) (*model.ScrubReport, error) {
	return r.run(ctx, model.RunDetect, r.DetectPipeline(opts))
}

// Redact runs the redact workflow for the approved entity string. The
// returned report is non-nil unless the error is ErrAlreadyRunning.
func (r *Runner) Redact(ctx context.Context, approved string) (*model.ScrubReport, error) {
	return r.run(ctx, model.RunRedact, r.RedactPipeline(approved))
}

func (r *Runner) run(ctx context.Context, kind model.RunKind, p *Pipeline) (*model.ScrubReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	report := model.NewScrubReport(kind)
	err := p.Execute(ctx, report)
	return report, err
}
