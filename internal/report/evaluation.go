package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/nao1215/piiscrub/internal/evaluate"
)

// EvaluationWriter outputs the result of a model evaluation.
type EvaluationWriter interface {
	WriteEvaluation(res *evaluate.Result) (int, error)
}

// scoreText formats a score, or "n/a" when it is undefined.
func scoreText(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// fLabel names the F score of res, e.g. "F1" or "F0.5".
func fLabel(res *evaluate.Result) string {
	return "F" + strconv.FormatFloat(res.Beta, 'g', -1, 64)
}

// spanList renders span scores as "text [TYPE] score" items.
func spanList(spans []evaluate.SpanScore) string {
	items := make([]string, len(spans))
	for i, s := range spans {
		items[i] = fmt.Sprintf("%s [%s] %.2f", s.Text, s.Type, s.Score)
	}
	return strings.Join(items, "; ")
}

// WriteEvaluation outputs the evaluation as a score table. Sample errors
// are listed in verbose mode.
func (w *SimpleWriter) WriteEvaluation(res *evaluate.Result) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	rule(&sb, "=")
	sb.WriteString("                       PIISCRUB EVALUATION\n")
	rule(&sb, "=")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Model:          %s\n", res.Model)
	fmt.Fprintf(&sb, "Samples:        %d\n", res.Samples)
	fmt.Fprintf(&sb, "With errors:    %d\n", len(res.Errors))
	sb.WriteString("\n")

	section(&sb, "SCORES")
	fmt.Fprintf(&sb, "  %-16s %9s %9s %9s %10s %10s\n", "TYPE", "PRECISION", "RECALL", fLabel(res), "ANNOTATED", "PREDICTED")
	for _, s := range res.Scores {
		fmt.Fprintf(&sb, "  %-16s %9s %9s %9s %10d %10d\n",
			TypeLabel(s.Type), scoreText(s.Precision), scoreText(s.Recall), scoreText(s.F), s.Annotated, s.Predicted)
	}
	sb.WriteString("\n")

	if w.verbose && len(res.Errors) > 0 {
		section(&sb, "ERRORS")
		for _, se := range res.Errors {
			fmt.Fprintf(&sb, "  #%d %s\n", se.Index, se.Text)
			if len(se.Missed) > 0 {
				fmt.Fprintf(&sb, "      missed:   %s\n", spanList(se.Missed))
			}
			if len(se.Spurious) > 0 {
				fmt.Fprintf(&sb, "      spurious: %s\n", spanList(se.Spurious))
			}
		}
		sb.WriteString("\n")
	}

	return io.WriteString(w.output, sb.String())
}

// WriteEvaluation outputs the evaluation in JSON format. Undefined scores
// are null.
func (w *JSONWriter) WriteEvaluation(res *evaluate.Result) (int, error) {
	return w.writeJSON(res)
}

// WriteEvaluation outputs the evaluation as Markdown tables.
func (w *MarkdownWriter) WriteEvaluation(res *evaluate.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("piiscrub Evaluation")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Model", res.Model},
			{"Samples", strconv.Itoa(res.Samples)},
			{"Samples with errors", strconv.Itoa(len(res.Errors))},
		},
	})
	md.PlainText("")

	md.H2("Scores")
	md.PlainText("")
	rows := make([][]string, len(res.Scores))
	for i, s := range res.Scores {
		rows[i] = []string{
			TypeLabel(s.Type),
			scoreText(s.Precision),
			scoreText(s.Recall),
			scoreText(s.F),
			strconv.Itoa(s.Annotated),
			strconv.Itoa(s.Predicted),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Type", "Precision", "Recall", fLabel(res), "Annotated", "Predicted"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(res.Errors) > 0 {
		md.H2("Errors")
		md.PlainText("")
		rows := make([][]string, len(res.Errors))
		for i, se := range res.Errors {
			rows[i] = []string{
				strconv.Itoa(se.Index),
				truncateString(se.Text, 60),
				orDash(spanList(se.Missed)),
				orDash(spanList(se.Spurious)),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Sample", "Text", "Missed", "Spurious"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
