package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/config"
	"github.com/nao1215/piiscrub/internal/database"
	"github.com/nao1215/piiscrub/internal/model"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [ticket-id]",
		Short: "Show recorded runs from the audit database",
		Long: `History lists the runs recorded with --audit, newest first. With a ticket
id only the runs of that ticket are listed.

The audit database holds run metadata and keyed HMAC-SHA3-256 fingerprints
of the redacted entities. The key is generated on first use and kept next
to the database. It never holds ticket text, so --check answers whether a
given text was redacted from a comment without storing it.

Examples:
  # List the last runs of every ticket
  piiscrub history

  # List the tickets with recorded runs
  piiscrub history --tickets

  # List the runs of ticket 42
  piiscrub history 42

  # Show the redaction requests of one run
  piiscrub history --run 0b7c4e9a-5f3d-4c1e-9a8b-2d6f1e0c3b7a

  # Check whether a text was redacted from comment 7 of ticket 42
  piiscrub history 42 --comment 7 --check "John Smith"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int("limit", defaultHistoryLimit, "Maximum number of runs to list (0 for all)")
	cmd.Flags().String("run", "", "Show the redaction requests of this run id")
	cmd.Flags().Int64("comment", 0, "Comment id for --check")
	cmd.Flags().String("check", "", "Report whether this text was redacted from --comment")
	cmd.Flags().Bool("tickets", false, "List the ids of tickets with recorded runs")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().String("db-dir", "", "Audit database directory (default: XDG data directory)")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	ticketID  int64
	limit     int
	runID     string
	commentID int64
	check     string
	tickets   bool
	json      bool
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := parseHistoryOptions(cmd, args)
	if err != nil {
		return err
	}

	db, err := openHistoryDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return showHistory(cmd.Context(), db, opts, cmd.OutOrStdout())
}

func parseHistoryOptions(cmd *cobra.Command, args []string) (historyOptions, error) {
	var opts historyOptions
	var err error

	if len(args) == 1 {
		opts.ticketID, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil || opts.ticketID <= 0 {
			return opts, fmt.Errorf("%w: %q", config.ErrInvalidTicketID, args[0])
		}
	}
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return opts, err
	}
	if opts.runID, err = cmd.Flags().GetString("run"); err != nil {
		return opts, err
	}
	if opts.commentID, err = cmd.Flags().GetInt64("comment"); err != nil {
		return opts, err
	}
	if opts.check, err = cmd.Flags().GetString("check"); err != nil {
		return opts, err
	}
	if opts.tickets, err = cmd.Flags().GetBool("tickets"); err != nil {
		return opts, err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return opts, err
	}

	if opts.check != "" && (opts.ticketID == 0 || opts.commentID <= 0) {
		return opts, errors.New("--check needs a ticket id argument and --comment")
	}
	return opts, nil
}

// openHistoryDB opens the existing audit database; history never creates
// one.
func openHistoryDB(ctx context.Context, cfg *config.Config) (*database.AuditDB, error) {
	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false

	db, err := database.Open(ctx, cfg.AuditDBDir(), dbOpts)
	if err != nil {
		return nil, fmt.Errorf("%w (run detect or redact with --audit first)", err)
	}
	return db, nil
}

// showHistory writes the view selected by opts.
func showHistory(ctx context.Context, db *database.AuditDB, opts historyOptions, w io.Writer) error {
	switch {
	case opts.check != "":
		redacted, err := db.WasRedacted(ctx, opts.ticketID, opts.commentID, opts.check)
		if err != nil {
			return err
		}
		if opts.json {
			return writeHistoryJSON(w, map[string]bool{"redacted": redacted})
		}
		if redacted {
			fmt.Fprintf(w, "redacted from ticket %d comment %d\n", opts.ticketID, opts.commentID)
		} else {
			fmt.Fprintf(w, "no redaction recorded for ticket %d comment %d\n", opts.ticketID, opts.commentID)
		}
		return nil

	case opts.tickets:
		ids, err := db.ListTickets(ctx)
		if err != nil {
			return err
		}
		if opts.json {
			return writeHistoryJSON(w, ids)
		}
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		return nil

	case opts.runID != "":
		run, err := db.GetRun(ctx, opts.runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run not found: %s", opts.runID)
		}
		redactions, err := db.Redactions(ctx, opts.runID)
		if err != nil {
			return err
		}
		if opts.json {
			return writeHistoryJSON(w, struct {
				Run        *database.RunRecord
				Redactions []database.RedactionRecord
			}{run, redactions})
		}
		writeRun(w, *run)
		for _, rec := range redactions {
			line := fmt.Sprintf("  comment %d  %-9s  %s", rec.CommentID, rec.Outcome, shortFingerprint(rec.Fingerprint))
			if rec.Error != "" {
				line += "  " + rec.Error
			}
			fmt.Fprintln(w, line)
		}
		return nil

	default:
		runs, err := db.ListRuns(ctx, opts.ticketID, opts.limit)
		if err != nil {
			return err
		}
		if opts.json {
			return writeHistoryJSON(w, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "no runs recorded")
			return nil
		}
		for _, run := range runs {
			writeRun(w, run)
		}
		return nil
	}
}

// writeRun writes one line describing a run.
func writeRun(w io.Writer, run database.RunRecord) {
	status := "ok"
	switch {
	case run.Cancelled:
		status = "cancelled"
	case !run.Succeeded():
		status = "failed"
	}

	fmt.Fprintf(w, "%s  %s  ticket %d  %-6s  %-9s",
		run.Timestamp.Local().Format(historyTimeFormat), run.RunID, run.TicketID, run.Kind, status)
	if run.Kind == model.RunDetect {
		fmt.Fprintf(w, "  %d entities in %d comments", run.EntityCount, run.CommentCount)
	} else {
		fmt.Fprintf(w, "  %d redacted, %d not found, %d failed", run.Redacted, run.NotFound, run.Failed)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  (%s)", run.Error)
	}
	fmt.Fprintln(w)
}

const historyTimeFormat = "2006-01-02 15:04:05"

// shortFingerprint abbreviates a fingerprint for display.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func writeHistoryJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
