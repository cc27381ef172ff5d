package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/piiscrub/internal/model"
)

// DefaultBatchConcurrency is the number of tickets processed at once.
const DefaultBatchConcurrency = 4

// Factory builds the pipeline for one ticket. Each call must return a fresh
// pipeline bound to a host serving ticketID.
type Factory func(ticketID int64) (*Pipeline, error)

// BatchProcessor runs one workflow over several tickets concurrently.
// It uses errgroup to manage goroutines and respect the concurrency limit.
type BatchProcessor struct {
	// factory creates a new pipeline for each ticket.
	factory Factory

	// kind is the workflow the factory's pipelines run.
	kind model.RunKind

	// concurrency is the maximum number of tickets processed at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of tickets processed at once.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor running pipelines of the
// given kind.
func NewBatchProcessor(kind model.RunKind, factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		kind:        kind,
		concurrency: DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch runs the workflow for every ticket id and returns one report
// per ticket, in input order. A failed ticket does not stop the others; its
// error is recorded in its report. The error return is non-nil only when
// the batch itself was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, ticketIDs []int64) ([]*model.ScrubReport, error) {
	reports := make([]*model.ScrubReport, len(ticketIDs))
	err := bp.ProcessBatchWithCallback(ctx, ticketIDs, func(report *model.ScrubReport, index int) {
		reports[index] = report
	})
	return reports, err
}

// ProcessBatchWithCallback runs the workflow for every ticket id and calls
// callback with each finished report and the index of its ticket. The
// callback is called from the goroutine that ran the ticket, so it must be
// safe for concurrent use if it touches shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	ticketIDs []int64,
	callback func(report *model.ScrubReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"kind", string(bp.kind),
		"total_tickets", len(ticketIDs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, id := range ticketIDs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			report := model.NewScrubReport(bp.kind)
			report.TicketID = id

			p, err := bp.factory(id)
			if err != nil {
				report.State = model.StateDone
				report.Fail(err)
			} else if err := p.Execute(ctx, report); err != nil {
				bp.logger.Warn("ticket failed",
					"ticket_id", id,
					"error", err,
				)
			}

			callback(report, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_tickets", len(ticketIDs),
		"elapsed", time.Since(startTime),
	)
	return err
}
