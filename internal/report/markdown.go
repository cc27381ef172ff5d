package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/piiscrub/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, built with
// nao1215/markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScrubReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := NewSummary(report)

	w.writeHeader(md, report, summary)
	w.writeAlert(md, summary)

	switch report.Kind {
	case model.RunDetect:
		w.writeEntities(md, report, summary)
	case model.RunRedact:
		w.writeResults(md, report)
	}

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs the summary as a single table.
func (w *MarkdownWriter) WriteSummary(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.Table(markdown.TableSet{
		Header: []string{"Ticket", "Run", "Status", "Entities", "Redacted", "Not Found", "Failed"},
		Rows: [][]string{{
			strconv.FormatInt(summary.TicketID, 10),
			string(summary.Kind),
			statusText(summary.Status),
			strconv.Itoa(summary.Entities),
			strconv.Itoa(summary.Redacted),
			strconv.Itoa(summary.NotFound),
			strconv.Itoa(summary.Failed),
		}},
	})
	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScrubReport, summary *Summary) {
	md.H1("piiscrub Report")
	md.PlainText("")

	rows := [][]string{
		{"Ticket", strconv.FormatInt(report.TicketID, 10)},
		{"Run", string(report.Kind)},
		{"Run ID", "`" + report.RunID + "`"},
		{"Date", report.DateProcessed.Format(dateFormat)},
		{"Comments", strconv.Itoa(report.CommentCount)},
	}
	if report.Model != "" {
		rows = append(rows, []string{"Model", report.Model})
	}
	status := statusText(summary.Status)
	if report.ErrorMessage != "" {
		status += " - " + report.ErrorMessage
	}
	rows = append(rows, []string{"Status", status})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// statusText returns the display text of a summary status.
func statusText(status string) string {
	switch status {
	case StatusCancelled:
		return "⚠️ Cancelled (partial results)"
	case StatusFailed:
		return "❌ Failed"
	default:
		return "✅ Complete"
	}
}

// writeAlert writes an alert matching the outcome of the run.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *Summary) {
	switch {
	case summary.Status == StatusFailed:
		md.Cautionf("The run failed. Some comments may still contain PII.")
	case summary.Status == StatusCancelled:
		md.Warningf("The run was cancelled before it finished.")
	case summary.Failed > 0:
		md.Cautionf("%d redaction request(s) failed.", summary.Failed)
	case summary.NotFound > 0:
		md.Importantf("%d entity occurrence(s) were no longer present in their comment.", summary.NotFound)
	case summary.Kind == model.RunDetect && summary.Entities > 0:
		md.Note(fmt.Sprintf("%d entities detected. Review them before redacting.", summary.Entities))
	case summary.Kind == model.RunDetect:
		md.Tip("No entities detected.")
	default:
		md.Tip(fmt.Sprintf("%d redaction(s) applied.", summary.Redacted))
	}
	md.PlainText("")
}

// writeEntities writes the entity table and type distribution.
func (w *MarkdownWriter) writeEntities(md *markdown.Markdown, report *model.ScrubReport, summary *Summary) {
	md.H2("Detected Entities")
	md.PlainText("")

	if len(report.Entities) == 0 {
		md.PlainText("No entities detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Entities))
	for i, e := range report.Entities {
		rows[i] = []string{
			"`" + truncateString(e.Text, 50) + "`",
			TypeLabel(e.Type),
			strconv.FormatFloat(e.Score, 'f', 2, 64),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Entity", "Type", "Score"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(summary.ByType) > 1 {
		w.writePieChart(md, summary)
	}
}

// writePieChart writes a mermaid pie chart of entity types.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Entity Types"),
		piechart.WithShowData(true),
	)
	for _, tc := range summary.ByType {
		chart.LabelAndIntValue(tc.Label, uint64(tc.Count)) //nolint:gosec // counts are non-negative
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeResults writes one row per redaction request.
func (w *MarkdownWriter) writeResults(md *markdown.Markdown, report *model.ScrubReport) {
	md.H2("Redactions")
	md.PlainText("")

	if len(report.Results) == 0 {
		md.PlainText("No redaction requests issued.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Results))
	for i, res := range report.Results {
		errText := res.Error
		if errText == "" {
			errText = "-"
		}
		rows[i] = []string{
			strconv.FormatInt(res.Request.CommentID, 10),
			"`" + truncateString(res.Request.Text, 50) + "`",
			outcomeText(res.Outcome),
			truncateString(errText, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Comment", "Entity", "Outcome", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// outcomeText returns the display text of a redaction outcome.
func outcomeText(o model.Outcome) string {
	switch o {
	case model.OutcomeRedacted:
		return "✅ Redacted"
	case model.OutcomeNotFound:
		return "🔍 Not found"
	case model.OutcomeFailed:
		return "❌ Failed"
	default:
		return string(o)
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [piiscrub](https://github.com/nao1215/piiscrub)*")
}

// truncateString truncates s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
