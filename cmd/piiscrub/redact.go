package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/pipeline"
)

// maxApprovedInput limits how much of stdin is read as approved entities.
const maxApprovedInput = 1 << 20

// errNoApprovedEntities is returned when redact is given no entities.
var errNoApprovedEntities = errors.New("no entities to redact: pass them as an argument or on stdin")

// NewRedactCmd creates the redact command.
func NewRedactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact [entities]",
		Short: "Redact approved entities from the comments of Zendesk tickets",
		Long: `Redact splits the approved entity string on the delimiter, finds every
comment containing each entity literally and asks Zendesk to redact it there.
Matching is exact and case-sensitive.

An entity that Zendesk no longer finds in a comment is reported as not
found and the run continues. Any other failure stops the remaining requests.

When no argument is given, or the argument is "-", the entities are read
from stdin. Each input line is one entity string.

Examples:
  # Redact two entities from ticket 42
  piiscrub redact -t 42 "John Smith, 555-1234"

  # Review detected entities, then redact them
  piiscrub detect -t 42 --entities-only > entities.txt
  $EDITOR entities.txt
  piiscrub redact -t 42 < entities.txt

  # Entities that contain commas
  piiscrub redact -t 42 -d ";" "Acme, Inc.;John Smith"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRedactCmd,
	}

	addZendeskFlags(cmd)
	addRedactFlags(cmd)
	addReportFlags(cmd)
	addAuditFlags(cmd)

	return cmd
}

// runRedactCmd executes the redact command.
func runRedactCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireTickets(); err != nil {
		return err
	}

	approved, err := readApproved(cmd.InOrStdin(), args, cfg.Delimiter)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, batchErr := runRedact(ctx, a, approved, cmd.ErrOrStderr())
	return errors.Join(batchErr, outputReports(cfg, cmd.OutOrStdout(), reports))
}

// runRedact runs the redact workflow for approved over the configured
// tickets.
func runRedact(ctx context.Context, a *app, approved string, progress io.Writer) ([]*model.ScrubReport, error) {
	return a.runBatch(ctx, model.RunRedact,
		func(r *pipeline.Runner) *pipeline.Pipeline {
			return r.RedactPipeline(approved)
		},
		progressFunc(progress, len(a.cfg.TicketIDs)),
	)
}

// readApproved returns the approved entity string: the argument, or the
// non-empty lines of in joined with delimiter.
func readApproved(in io.Reader, args []string, delimiter string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		if strings.TrimSpace(args[0]) == "" {
			return "", errNoApprovedEntities
		}
		return args[0], nil
	}

	data, err := io.ReadAll(io.LimitReader(in, maxApprovedInput))
	if err != nil {
		return "", fmt.Errorf("failed to read entities: %w", err)
	}

	var lines []string
	for line := range strings.SplitSeq(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", errNoApprovedEntities
	}
	return strings.Join(lines, delimiter), nil
}
