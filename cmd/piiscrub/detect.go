package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/pipeline"
)

// NewDetectCmd creates the detect command.
func NewDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect personal data in the comments of Zendesk tickets",
		Long: `Detect reads every comment of a ticket, strips the markup and sends the
text to Amazon Comprehend. Entities scoring above the threshold are listed
once each, in order of first occurrence. Nothing is changed in Zendesk.

The rendered entity string ("John Smith, 555-1234") is the input of the
redact command. Edit it to drop the entities that must stay.

Examples:
  # Detect entities in one ticket
  piiscrub detect -t 42

  # Detect in several tickets, two at a time, as Markdown
  piiscrub detect -t 42,43,44 -b 2 --markdown -o reports/pii.md

  # Use the PII model and keep only emails and phone numbers
  piiscrub detect -t 42 --model comprehend-pii --entity-type EMAIL,PHONE

  # Print only the entity string, ready for redact
  piiscrub detect -t 42 --entities-only`,
		Args: cobra.NoArgs,
		RunE: runDetectCmd,
	}

	addZendeskFlags(cmd)
	addDetectFlags(cmd)
	addReportFlags(cmd)
	addAuditFlags(cmd)
	cmd.Flags().Bool("entities-only", false,
		"Print only the rendered entity string of each ticket")

	return cmd
}

// runDetectCmd executes the detect command.
func runDetectCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireTickets(); err != nil {
		return err
	}

	entitiesOnly, err := cmd.Flags().GetBool("entities-only")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, batchErr := runDetect(ctx, a, cmd.ErrOrStderr())

	if entitiesOnly {
		writeRendered(cmd.OutOrStdout(), reports)
		return errors.Join(batchErr, runErrors(reports))
	}
	return errors.Join(batchErr, outputReports(cfg, cmd.OutOrStdout(), reports))
}

// runDetect runs the detect workflow over the configured tickets.
// Progress lines go to progress when there is more than one ticket.
func runDetect(ctx context.Context, a *app, progress io.Writer) ([]*model.ScrubReport, error) {
	opts := a.cfg.DetectOptions()
	total := len(a.cfg.TicketIDs)

	return a.runBatch(ctx, model.RunDetect,
		func(r *pipeline.Runner) *pipeline.Pipeline {
			return r.DetectPipeline(opts)
		},
		progressFunc(progress, total),
	)
}

// progressFunc returns a report callback printing one line per finished
// ticket, or nil for a single ticket.
func progressFunc(w io.Writer, total int) func(*model.ScrubReport, int) {
	if total < 2 {
		return nil
	}

	var mu sync.Mutex
	count := 0
	return func(r *model.ScrubReport, _ int) {
		mu.Lock()
		defer mu.Unlock()

		count++
		fmt.Fprintf(w, "[%d/%d] ticket %d: %s\n", count, total, r.TicketID, pipeline.Message(r))
	}
}

// writeRendered prints the rendered entity string of each successful
// detect report, one line per ticket.
func writeRendered(w io.Writer, reports []*model.ScrubReport) {
	for _, r := range reports {
		if r == nil || !r.Succeeded() {
			continue
		}
		fmt.Fprintln(w, r.Rendered)
	}
}
