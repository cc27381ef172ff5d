package evaluate

import (
	"encoding/json"
	"math"
)

// FBeta combines precision and recall, weighting recall beta times as much
// as precision. It returns NaN when either input is NaN or both are 0.
func FBeta(precision, recall, beta float64) float64 {
	if math.IsNaN(precision) || math.IsNaN(recall) || (precision == 0 && recall == 0) {
		return math.NaN()
	}
	b2 := beta * beta
	return (1 + b2) * precision * recall / (b2*precision + recall)
}

// ratio returns hit/total, or NaN when total is 0.
func ratio(hit, total int) float64 {
	if total == 0 {
		return math.NaN()
	}
	return float64(hit) / float64(total)
}

// TypeScore is the character-level score of one entity type over all
// samples. Precision is NaN when nothing was predicted, Recall when nothing
// was annotated, and F when either is NaN or both are 0.
type TypeScore struct {
	Type      string
	Annotated int
	Predicted int
	Correct   int
	Precision float64
	Recall    float64
	F         float64
}

// newTypeScore computes the scores of a type from its character counts.
func newTypeScore(typ string, annotated, predicted, correct int, beta float64) TypeScore {
	s := TypeScore{
		Type:      typ,
		Annotated: annotated,
		Predicted: predicted,
		Correct:   correct,
		Precision: ratio(correct, predicted),
		Recall:    ratio(correct, annotated),
	}
	s.F = FBeta(s.Precision, s.Recall, beta)
	return s
}

// MarshalJSON encodes undefined scores as null.
func (s TypeScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string   `json:"type"`
		Annotated int      `json:"annotated"`
		Predicted int      `json:"predicted"`
		Correct   int      `json:"correct"`
		Precision *float64 `json:"precision"`
		Recall    *float64 `json:"recall"`
		F         *float64 `json:"f"`
	}{
		Type:      s.Type,
		Annotated: s.Annotated,
		Predicted: s.Predicted,
		Correct:   s.Correct,
		Precision: defined(s.Precision),
		Recall:    defined(s.Recall),
		F:         defined(s.F),
	})
}

func defined(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
