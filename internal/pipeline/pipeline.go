package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/piiscrub/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the report
// filled in by the previous steps.
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the report to modify.
	// An error ends the run; expected per-item failures (such as a
	// redaction target that is no longer present) are recorded in the
	// report and Do returns nil.
	Do(ctx context.Context, report *model.ScrubReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// The main steps run in order until one fails. Finalizers run afterwards
// regardless of the outcome, once the report has reached StateDone.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finalizers run after the main steps, even when one failed.
	finalizers []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, the default logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalizer appends a step that runs after the main steps whether or not
// they succeeded. Finalizer errors are logged and do not change the run's
// outcome.
func (p *Pipeline) AddFinalizer(step Step) {
	p.finalizers = append(p.finalizers, step)
}

// Execute runs all pipeline steps in sequence and then the finalizers.
// The context is checked before each step; a cancelled run is marked in the
// report. On return the report is in StateDone.
//
// Returns the error that ended the run, which is also recorded in the
// report, or nil if every step succeeded.
func (p *Pipeline) Execute(ctx context.Context, report *model.ScrubReport) error {
	runErr := p.run(ctx, report)

	report.State = model.StateDone

	// Finalizers report the outcome, so they must not inherit a
	// cancellation that ended the run.
	finalCtx := context.WithoutCancel(ctx)
	for _, step := range p.finalizers {
		if err := step.Do(finalCtx, report); err != nil {
			p.logger.Warn("finalizer failed",
				"step", step.Name(),
				"run_id", report.RunID,
				"error", err,
			)
			continue
		}
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return runErr
}

// run executes the main steps, stopping at the first failure.
func (p *Pipeline) run(ctx context.Context, report *model.ScrubReport) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			report.Cancelled = true
			report.Fail(ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"run_id", report.RunID,
			"ticket_id", report.TicketID,
		)

		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"run_id", report.RunID,
				"ticket_id", report.TicketID,
				"error", err,
			)
			if ctx.Err() != nil {
				report.Cancelled = true
			}
			report.Fail(err)
			return err
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"run_id", report.RunID,
		)
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of main steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order, finalizers
// last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finalizers))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalizers {
		names = append(names, step.Name())
	}
	return names
}
