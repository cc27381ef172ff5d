package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/metrics"
	"github.com/nao1215/piiscrub/internal/pipeline"
	"github.com/nao1215/piiscrub/internal/server"
	"github.com/nao1215/piiscrub/internal/zendesk"
)

// errServeTickets is returned when serve is given more than one ticket.
var errServeTickets = errors.New("serve takes at most one --ticket: it is the initial active ticket")

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sidebar app and the ticket-id sync endpoint",
		Long: `Serve starts the piiscrub HTTP app. The Zendesk sidebar pushes the id of
the open ticket to /update-ticket-id; /detect and /redact then run the
workflows on that ticket.

Endpoints:
  PUT|POST /update-ticket-id    set the active ticket (alias /replace-ticket-id)
  POST     /detect              detect entities in the active ticket
  POST     /redact              redact approved entities
  GET      /entities            last detection result
  GET      /sidebar             sidebar page
  GET      /healthz             health check
  GET      /metrics             Prometheus metrics

Examples:
  # Serve on the default loopback address
  piiscrub serve

  # Serve on another port with ticket 42 active
  piiscrub serve --listen 127.0.0.1:9090 -t 42`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	addZendeskFlags(cmd)
	addDetectFlags(cmd)
	addRedactFlags(cmd)
	addAuditFlags(cmd)
	cmd.Flags().String("listen", "", "Listen address (default: 127.0.0.1:8080)")
	cmd.Flags().Bool("no-metrics", false, "Disable the /metrics endpoint")
	cmd.Flags().Int64("max-body-size", server.DefaultMaxBodySize,
		"Maximum request body size in bytes")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.TicketIDs) > 1 {
		return errServeTickets
	}

	noMetrics, err := cmd.Flags().GetBool("no-metrics")
	if err != nil {
		return err
	}
	maxBodySize, err := cmd.Flags().GetInt64("max-body-size")
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

	var initial int64
	if len(cfg.TicketIDs) == 1 {
		initial = cfg.TicketIDs[0]
	}
	store := zendesk.NewTicketStore(initial)

	serverOpts := []server.Option{
		server.WithDetectOptions(cfg.DetectOptions()),
		server.WithLogger(logger),
		server.WithMaxBodySize(maxBodySize),
	}
	var finalizers []pipeline.Step
	if !noMetrics {
		m := metrics.NewMetrics()
		finalizers = append(finalizers, pipeline.NewMetricsStep(m))
		serverOpts = append(serverOpts, server.WithMetrics(m))
	}

	runner, err := a.newRunner(store, finalizers...)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "piiscrub listening on http://%s\n", cfg.ListenAddr)
	return server.New(runner, store, serverOpts...).ListenAndServe(ctx, cfg.ListenAddr)
}
