package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/config"
	"github.com/nao1215/piiscrub/internal/database"
	"github.com/nao1215/piiscrub/internal/detect"
	plog "github.com/nao1215/piiscrub/internal/log"
	"github.com/nao1215/piiscrub/internal/model"
	"github.com/nao1215/piiscrub/internal/pipeline"
	"github.com/nao1215/piiscrub/internal/report"
	"github.com/nao1215/piiscrub/internal/ticket"
	"github.com/nao1215/piiscrub/internal/zendesk"
)

// addZendeskFlags registers the flags selecting the Zendesk instance and
// tickets.
func addZendeskFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("zendesk-url", "u", "",
		"Zendesk instance URL (e.g., https://acme.zendesk.com)")
	cmd.Flags().StringP("email", "e", "",
		"Agent email for API token authentication")
	cmd.Flags().Int64SliceP("ticket", "t", nil,
		"Ticket id to process (repeat or comma-separate for several)")
	cmd.Flags().Duration("timeout", config.DefaultTimeout,
		"Timeout for each Zendesk API request")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of tickets processed concurrently")
}

// addDetectFlags registers the detection flags.
func addDetectFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", detect.DefaultModel.String(),
		"Detection model (comprehend, comprehend-pii or pattern)")
	cmd.Flags().StringP("language", "l", detect.DefaultLanguage,
		"Language code of the ticket text")
	cmd.Flags().Float64("threshold", detect.DefaultThreshold,
		"Keep entities scoring strictly above this confidence")
	cmd.Flags().StringSlice("entity-type", nil,
		"Keep only entities of this type (repeatable, e.g. NAME,EMAIL)")
	cmd.Flags().String("aws-region", "", "AWS region of Comprehend")
	cmd.Flags().String("aws-profile", "", "AWS shared config profile")
	cmd.Flags().String("identity-pool", "",
		"Cognito identity pool id for unauthenticated Comprehend access")
}

// addRedactFlags registers the redaction flags.
func addRedactFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("delimiter", "d", config.DefaultDelimiter,
		"Separator between approved entities")
	cmd.Flags().Int("concurrency", config.DefaultRedactConcurrency,
		"Redaction requests in flight at once per ticket")
}

// addReportFlags registers the report output flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// addAuditFlags registers the audit database flags.
func addAuditFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("audit", false,
		"Record runs in the audit database (fingerprints only, never text)")
	cmd.Flags().String("db-dir", "",
		"Audit database directory (default: XDG data directory)")
}

// buildConfig builds the configuration of cmd: defaults, then the
// configuration file, then every flag the user set explicitly.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(inheritedString(cmd, "config"))
	if err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	cfg.ResolveAPIToken()
	return cfg, nil
}

// loadConfig is buildConfig followed by validation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// applyFlags copies the flags set on the command line into cfg. Flags
// the command does not define, or the user did not set, leave cfg as is.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}

	cfg.Verbose = inheritedBool(cmd, "verbose")
	cfg.LogJSON = inheritedBool(cmd, "log-json")

	var err error

	if changed("zendesk-url") {
		if cfg.ZendeskURL, err = flags.GetString("zendesk-url"); err != nil {
			return err
		}
	}
	if changed("email") {
		if cfg.Email, err = flags.GetString("email"); err != nil {
			return err
		}
	}
	if changed("ticket") {
		if cfg.TicketIDs, err = flags.GetInt64Slice("ticket"); err != nil {
			return err
		}
	}
	if changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if changed("batch") {
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return err
		}
	}

	if changed("model") {
		name, err := flags.GetString("model")
		if err != nil {
			return err
		}
		if cfg.Model, err = detect.ParseModel(name); err != nil {
			return err
		}
	}
	if changed("language") {
		if cfg.Language, err = flags.GetString("language"); err != nil {
			return err
		}
	}
	if changed("threshold") {
		if cfg.Threshold, err = flags.GetFloat64("threshold"); err != nil {
			return err
		}
	}
	if changed("entity-type") {
		if cfg.EntityTypes, err = flags.GetStringSlice("entity-type"); err != nil {
			return err
		}
	}
	if changed("aws-region") {
		if cfg.AWS.Region, err = flags.GetString("aws-region"); err != nil {
			return err
		}
	}
	if changed("aws-profile") {
		if cfg.AWS.Profile, err = flags.GetString("aws-profile"); err != nil {
			return err
		}
	}
	if changed("identity-pool") {
		if cfg.AWS.IdentityPoolID, err = flags.GetString("identity-pool"); err != nil {
			return err
		}
	}

	if changed("delimiter") {
		if cfg.Delimiter, err = flags.GetString("delimiter"); err != nil {
			return err
		}
	}
	if changed("concurrency") {
		if cfg.RedactConcurrency, err = flags.GetInt("concurrency"); err != nil {
			return err
		}
	}

	if changed("json") {
		if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
			return err
		}
	}
	if changed("markdown") {
		if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
			return err
		}
	}
	if changed("output") {
		if cfg.ReportFile, err = flags.GetString("output"); err != nil {
			return err
		}
	}

	if changed("audit") {
		if cfg.Audit, err = flags.GetBool("audit"); err != nil {
			return err
		}
	}
	if changed("db-dir") {
		if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
			return err
		}
	}

	if changed("listen") {
		if cfg.ListenAddr, err = flags.GetString("listen"); err != nil {
			return err
		}
	}

	return nil
}

// inheritedBool retrieves a global flag from the command or the root.
// An undefined flag reads as false.
func inheritedBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// inheritedString retrieves a global flag from the command or the root.
// An undefined flag reads as "".
func inheritedString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// setupLogger creates the secure logger selected by cfg and makes it the
// default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := plog.New(os.Stderr, plog.Options{Verbose: cfg.Verbose, JSON: cfg.LogJSON})
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// app holds the collaborators shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client

	// detector is nil for commands that never detect.
	detector *detect.Detector

	// db is nil unless auditing is enabled.
	db *database.AuditDB
}

// newApp builds the shared collaborators. withDetector selects whether a
// Comprehend client is created.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withDetector bool) (*app, error) {
	a := &app{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	if withDetector {
		d, err := newDetector(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.detector = d
	}

	if cfg.Audit {
		db, err := database.Open(ctx, cfg.AuditDBDir(), database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		a.db = db
		logger.Info("audit database opened", "path", db.Path())
	}

	return a, nil
}

// Close releases the audit database.
func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// newDetector creates a detector with the pattern backend and, unless the
// pattern model is selected, the Amazon Comprehend backends.
func newDetector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*detect.Detector, error) {
	registry := detect.NewRegistry()
	detect.NewPatterns().Register(registry)

	// The pattern backend runs offline; AWS is only set up for Comprehend.
	if cfg.Model != detect.ModelPattern {
		api, err := detect.NewComprehendClient(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		detect.NewComprehend(api,
			detect.WithMaxTextBytes(cfg.MaxTextBytes),
			detect.WithChunkConcurrency(cfg.ChunkConcurrency),
			detect.WithComprehendLogger(logger),
		).Register(registry)
	}

	return detect.NewDetector(registry, detect.WithLogger(logger)), nil
}

// newHost creates a Zendesk host serving the ticket held in store.
func (a *app) newHost(store *zendesk.TicketStore) (*zendesk.Client, error) {
	opts := []zendesk.Option{
		zendesk.WithHTTPClient(a.httpClient),
		zendesk.WithUserAgent(a.cfg.UserAgent),
		zendesk.WithMaxBodySize(a.cfg.MaxBodySize),
		zendesk.WithLogger(a.logger),
	}
	if a.cfg.APIToken != "" {
		opts = append(opts, zendesk.WithCredentials(a.cfg.Email, a.cfg.APIToken))
	}
	return zendesk.NewClient(a.cfg.ZendeskURL, store, opts...)
}

// newRunner creates a workflow runner on the ticket held in store. Extra
// finalizers run after the audit finalizer.
func (a *app) newRunner(store *zendesk.TicketStore, finalizers ...pipeline.Step) (*pipeline.Runner, error) {
	host, err := a.newHost(store)
	if err != nil {
		return nil, err
	}

	if a.db != nil {
		finalizers = append([]pipeline.Step{pipeline.NewAuditStep(a.db)}, finalizers...)
	}

	client := ticket.NewClient(host, ticket.WithLogger(a.logger))
	return pipeline.NewRunner(client, a.detector,
		pipeline.WithDelimiter(a.cfg.Delimiter),
		pipeline.WithRunnerRedactConcurrency(a.cfg.RedactConcurrency),
		pipeline.WithFinalizers(finalizers...),
		pipeline.WithRunnerLogger(a.logger),
	), nil
}

// runBatch runs one workflow over every configured ticket and returns the
// reports in ticket order. build selects the workflow from the runner of
// each ticket.
func (a *app) runBatch(
	ctx context.Context,
	kind model.RunKind,
	build func(r *pipeline.Runner) *pipeline.Pipeline,
	onReport func(report *model.ScrubReport, index int),
) ([]*model.ScrubReport, error) {
	bp := pipeline.NewBatchProcessor(kind,
		func(ticketID int64) (*pipeline.Pipeline, error) {
			r, err := a.newRunner(zendesk.NewTicketStore(ticketID))
			if err != nil {
				return nil, err
			}
			return build(r), nil
		},
		pipeline.WithConcurrency(a.cfg.BatchSize),
		pipeline.WithBatchLogger(a.logger),
	)

	reports := make([]*model.ScrubReport, len(a.cfg.TicketIDs))
	err := bp.ProcessBatchWithCallback(ctx, a.cfg.TicketIDs, func(r *model.ScrubReport, index int) {
		reports[index] = r
		if onReport != nil {
			onReport(r, index)
		}
	})
	return reports, err
}

// newReportWriter returns the writer selected by cfg.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// openReportOutput returns the destination of reports: the configured
// report file, or stdout. The returned close function is never nil.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports hold detected PII, so they are readable by the owner only.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// outputReports writes every report and returns an error if any run
// failed. Several reports are followed by one summary line each. When the
// reports go to a file, the summary lines are also printed to stdout.
func outputReports(cfg *config.Config, stdout io.Writer, reports []*model.ScrubReport) error {
	output, closeOutput, err := openReportOutput(cfg, stdout)
	if err != nil {
		return err
	}

	w := newReportWriter(cfg, output)
	_, writeErr := report.WriteAll(w, reports)

	if writeErr == nil {
		writeErr = writeSummaries(summaryWriter(cfg, w, stdout, len(reports)), reports)
	}

	if err := errors.Join(writeErr, closeOutput()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return runErrors(reports)
}

// summaryWriter returns where summary lines go, or nil for none. JSON
// output carries its summaries inside each report.
func summaryWriter(cfg *config.Config, w report.Writer, stdout io.Writer, count int) report.Writer {
	var writers []report.Writer
	if count > 1 && !cfg.JSONReport {
		writers = append(writers, w)
	}
	if cfg.ReportFile != "" {
		writers = append(writers, report.NewSimpleWriter(stdout))
	}

	switch len(writers) {
	case 0:
		return nil
	case 1:
		return writers[0]
	default:
		return report.NewMultiWriter(writers...)
	}
}

func writeSummaries(w report.Writer, reports []*model.ScrubReport) error {
	if w == nil {
		return nil
	}
	for _, r := range reports {
		if r == nil {
			continue
		}
		if _, err := w.WriteSummary(report.NewSummary(r)); err != nil {
			return err
		}
	}
	return nil
}

// runErrors joins the errors of failed runs.
func runErrors(reports []*model.ScrubReport) error {
	var errs []error
	for _, r := range reports {
		if r != nil && r.Error != nil {
			errs = append(errs, fmt.Errorf("ticket %d: %w", r.TicketID, r.Error))
		}
	}
	return errors.Join(errs...)
}
