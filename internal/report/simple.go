package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/piiscrub/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format.
func (w *SimpleWriter) Write(report *model.ScrubReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, NewSummary(report))

	switch report.Kind {
	case model.RunDetect:
		w.writeEntities(&sb, report)
	case model.RunRedact:
		w.writeResults(&sb, report)
	}

	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs a one-line summary.
func (w *SimpleWriter) WriteSummary(summary *Summary) (int, error) {
	var line string
	switch summary.Kind {
	case model.RunDetect:
		line = fmt.Sprintf("ticket %d: %s, %d entities in %d comments\n",
			summary.TicketID, summary.Status, summary.Entities, summary.Comments)
	default:
		line = fmt.Sprintf("ticket %d: %s, %d redacted, %d not found, %d failed\n",
			summary.TicketID, summary.Status, summary.Redacted, summary.NotFound, summary.Failed)
	}
	return io.WriteString(w.output, line)
}

func rule(sb *strings.Builder, c string) {
	sb.WriteString(strings.Repeat(c, 70))
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title string) {
	rule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	rule(sb, "-")
	sb.WriteString("\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScrubReport) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                         PIISCRUB REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Ticket:         %d\n", report.TicketID)
	fmt.Fprintf(sb, "Run:            %s (%s)\n", report.Kind, report.DateProcessed.Format(dateFormat))
	fmt.Fprintf(sb, "Comments:       %d\n", report.CommentCount)
	if report.Model != "" {
		fmt.Fprintf(sb, "Model:          %s\n", report.Model)
	}
	if w.verbose {
		fmt.Fprintf(sb, "Run ID:         %s\n", report.RunID)
		fmt.Fprintf(sb, "Final State:    %s\n", report.State)
		if len(report.PerformedSteps) > 0 {
			fmt.Fprintf(sb, "Steps:          %s\n", strings.Join(report.PerformedSteps, " -> "))
		}
	}

	switch {
	case report.Cancelled:
		sb.WriteString("Status:         CANCELLED (partial results)\n")
	case report.ErrorMessage != "":
		fmt.Fprintf(sb, "Status:         ERROR - %s\n", report.ErrorMessage)
	default:
		sb.WriteString("Status:         Complete\n")
	}
	sb.WriteString("\n")
}

// writeSummary writes the count section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary *Summary) {
	section(sb, "SUMMARY")

	switch summary.Kind {
	case model.RunDetect:
		fmt.Fprintf(sb, "  ENTITIES:   %d\n", summary.Entities)
		for _, tc := range summary.ByType {
			fmt.Fprintf(sb, "    %-16s %d\n", tc.Label+":", tc.Count)
		}
	default:
		fmt.Fprintf(sb, "  MATCHES:    %d\n", summary.Matches)
		fmt.Fprintf(sb, "  REDACTED:   %d\n", summary.Redacted)
		fmt.Fprintf(sb, "  NOT FOUND:  %d\n", summary.NotFound)
		fmt.Fprintf(sb, "  FAILED:     %d\n", summary.Failed)
	}
	sb.WriteString("\n")
}

// writeEntities writes the detected entities of a detect run.
func (w *SimpleWriter) writeEntities(sb *strings.Builder, report *model.ScrubReport) {
	if len(report.Entities) == 0 && !w.showEmpty {
		return
	}

	section(sb, "DETECTED ENTITIES")

	if len(report.Entities) == 0 {
		sb.WriteString("  No entities detected\n\n")
		return
	}
	for _, e := range report.Entities {
		fmt.Fprintf(sb, "  * %s [%s] %.2f\n", e.Text, TypeLabel(e.Type), e.Score)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Rendered: %s\n\n", report.Rendered)
}

// writeResults writes the outcome of every redaction request.
func (w *SimpleWriter) writeResults(sb *strings.Builder, report *model.ScrubReport) {
	if len(report.Results) == 0 && !w.showEmpty {
		return
	}

	section(sb, "REDACTIONS")

	if len(report.Results) == 0 {
		sb.WriteString("  No redaction requests issued\n\n")
		return
	}
	for _, res := range report.Results {
		fmt.Fprintf(sb, "  [%s] comment %d: %s\n",
			outcomeIndicator(res.Outcome), res.Request.CommentID, res.Request.Text)
		if w.verbose && res.Error != "" {
			fmt.Fprintf(sb, "      Error: %s\n", res.Error)
		}
	}
	sb.WriteString("\n")
}

// outcomeIndicator returns a visual indicator for a redaction outcome.
func outcomeIndicator(o model.Outcome) string {
	switch o {
	case model.OutcomeRedacted:
		return "+"
	case model.OutcomeNotFound:
		return "?"
	case model.OutcomeFailed:
		return "!"
	default:
		return " "
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by piiscrub\n")
	sb.WriteString("https://github.com/nao1215/piiscrub\n")
	rule(sb, "=")
}
