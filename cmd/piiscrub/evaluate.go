package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/piiscrub/internal/config"
	"github.com/nao1215/piiscrub/internal/evaluate"
	"github.com/nao1215/piiscrub/internal/report"
)

// NewEvaluateCmd creates the evaluate command.
func NewEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <data-file>",
		Short: "Score a detection model against a labelled data set",
		Long: `Evaluate runs a detection model over the sentences of a labelled token file
and reports character-level precision, recall and F-score per entity type.
No Zendesk access is needed.

The data file is in CoNLL-2003 ("word pos chunk label") or WNUT-17
("token label") layout. Data set labels are translated to entity types with
--label; labels without a mapping are ignored. The default mapping covers
the person, location and organisation labels of both data sets.

Examples:
  # Score Comprehend on the CoNLL-2003 test split
  piiscrub evaluate data/conll2003/test.txt

  # Score the offline pattern model on a WNUT-17 file with a custom mapping
  piiscrub evaluate wnut17/emerging.test --format wnut --model pattern \
    --label person=PERSON,location=LOCATION

  # Weight recall twice as much as precision and list every error
  piiscrub evaluate test.txt --beta 2 -v

  # Write the result as JSON
  piiscrub evaluate test.txt --json -o eval.json`,
		Args: cobra.ExactArgs(1),
		RunE: runEvaluateCmd,
	}

	addDetectFlags(cmd)
	addReportFlags(cmd)
	cmd.Flags().String("format", string(evaluate.FormatCoNLL), "Data file layout (conll or wnut)")
	cmd.Flags().StringToString("label", nil,
		"Map a data set label to an entity type (repeatable, e.g. PER=PERSON)")
	cmd.Flags().Float64("beta", evaluate.DefaultBeta, "Weight of recall against precision in the F-score")
	cmd.Flags().Int("parallel", evaluate.DefaultConcurrency, "Sentences detected at once")

	return cmd
}

// evaluateOptions are the parsed flags of the evaluate command.
type evaluateOptions struct {
	path     string
	format   evaluate.Format
	labels   map[string]string
	beta     float64
	parallel int
}

func parseEvaluateOptions(cmd *cobra.Command, args []string) (evaluateOptions, error) {
	opts := evaluateOptions{path: args[0]}
	flags := cmd.Flags()

	name, err := flags.GetString("format")
	if err != nil {
		return opts, err
	}
	if opts.format, err = evaluate.ParseFormat(name); err != nil {
		return opts, err
	}

	if opts.labels, err = flags.GetStringToString("label"); err != nil {
		return opts, err
	}
	if len(opts.labels) == 0 {
		opts.labels = evaluate.DefaultLabels()
	}

	if opts.beta, err = flags.GetFloat64("beta"); err != nil {
		return opts, err
	}
	if opts.beta <= 0 {
		return opts, fmt.Errorf("%w: %v", evaluate.ErrInvalidBeta, opts.beta)
	}

	if opts.parallel, err = flags.GetInt("parallel"); err != nil {
		return opts, err
	}
	if opts.parallel <= 0 {
		return opts, errors.New("--parallel must be positive")
	}
	return opts, nil
}

// runEvaluateCmd executes the evaluate command.
func runEvaluateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return fmt.Errorf("configuration error: %w", config.ErrConflictingReportFormats)
	}

	opts, err := parseEvaluateOptions(cmd, args)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.path)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	samples, err := evaluate.Read(f, opts.format)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", opts.path, err)
	}

	logger := setupLogger(cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	detector, err := newDetector(ctx, cfg, logger)
	if err != nil {
		return err
	}

	res, err := evaluate.New(detector, cfg.DetectOptions(),
		evaluate.WithLabels(opts.labels),
		evaluate.WithBeta(opts.beta),
		evaluate.WithConcurrency(opts.parallel),
		evaluate.WithLogger(logger),
	).Evaluate(ctx, samples)
	if err != nil {
		return err
	}

	output, closeOutput, err := openReportOutput(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	_, writeErr := newEvaluationWriter(cfg, output).WriteEvaluation(res)
	return errors.Join(writeErr, closeOutput())
}

// newEvaluationWriter returns the evaluation writer selected by cfg.
func newEvaluationWriter(cfg *config.Config, output io.Writer) report.EvaluationWriter {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
