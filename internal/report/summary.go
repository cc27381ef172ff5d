package report

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/piiscrub/internal/model"
)

// UnknownType is the label used for entities without a type.
const UnknownType = "Unknown"

var titleCaser = cases.Title(language.English)

// TypeLabel returns a display label for a backend entity type, e.g.
// "PHONE" becomes "Phone" and "COMMERCIAL_ITEM" becomes "Commercial Item".
func TypeLabel(entityType string) string {
	t := strings.TrimSpace(strings.ReplaceAll(entityType, "_", " "))
	if t == "" {
		return UnknownType
	}
	return titleCaser.String(strings.ToLower(t))
}

// TypeCount is the number of entities of one type.
type TypeCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary condenses a ScrubReport into counts.
type Summary struct {
	RunID    string        `json:"run_id"`
	Kind     model.RunKind `json:"kind"`
	TicketID int64         `json:"ticket_id"`
	Status   string        `json:"status"`
	Comments int           `json:"comments"`
	Entities int           `json:"entities"`
	ByType   []TypeCount   `json:"by_type,omitempty"`
	Matches  int           `json:"matches"`
	Redacted int           `json:"redacted"`
	NotFound int           `json:"not_found"`
	Failed   int           `json:"failed"`
}

// Status values of a Summary.
const (
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// NewSummary builds the summary of report.
func NewSummary(report *model.ScrubReport) *Summary {
	return &Summary{
		RunID:    report.RunID,
		Kind:     report.Kind,
		TicketID: report.TicketID,
		Status:   statusOf(report),
		Comments: report.CommentCount,
		Entities: len(report.Entities),
		ByType:   countByType(report.Entities),
		Matches:  len(report.Matches),
		Redacted: report.Count(model.OutcomeRedacted),
		NotFound: report.Count(model.OutcomeNotFound),
		Failed:   report.Count(model.OutcomeFailed),
	}
}

func statusOf(report *model.ScrubReport) string {
	switch {
	case report.Cancelled:
		return StatusCancelled
	case report.Error != nil || report.ErrorMessage != "":
		return StatusFailed
	default:
		return StatusComplete
	}
}

// countByType counts entities per type label, most frequent first and
// alphabetically within equal counts.
func countByType(entities []model.Entity) []TypeCount {
	if len(entities) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, e := range entities {
		counts[TypeLabel(e.Type)]++
	}

	out := make([]TypeCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, TypeCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
