package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/piiscrub/internal/detect"
)

// DefaultConcurrency is the number of samples detected at once.
const DefaultConcurrency = 4

// DefaultBeta weights precision and recall equally.
const DefaultBeta = 1.0

var (
	// ErrNoLabels is returned when the label map is empty.
	ErrNoLabels = errors.New("label map is empty")

	// ErrInvalidBeta is returned for a beta that is not positive.
	ErrInvalidBeta = errors.New("invalid beta: must be greater than 0")
)

// DefaultLabels maps the person, location and organisation labels of
// CoNLL-2003 and WNUT-17 to Comprehend entity types.
func DefaultLabels() map[string]string {
	return map[string]string{
		"PER":         "PERSON",
		"LOC":         "LOCATION",
		"ORG":         "ORGANIZATION",
		"person":      "PERSON",
		"location":    "LOCATION",
		"corporation": "ORGANIZATION",
	}
}

// SampleError lists what went wrong in one sample: ground truth spans not
// fully found, with their recall, and predicted spans not fully correct,
// with their precision.
type SampleError struct {
	Index    int         `json:"index"`
	Text     string      `json:"text"`
	Missed   []SpanScore `json:"missed,omitempty"`
	Spurious []SpanScore `json:"spurious,omitempty"`
}

// Result is the outcome of an evaluation.
type Result struct {
	Model   string        `json:"model"`
	Beta    float64       `json:"beta"`
	Samples int           `json:"samples"`
	Scores  []TypeScore   `json:"scores"`
	Errors  []SampleError `json:"errors,omitempty"`
}

// Score returns the score of typ.
func (r *Result) Score(typ string) (TypeScore, bool) {
	for _, s := range r.Scores {
		if s.Type == strings.ToUpper(typ) {
			return s, true
		}
	}
	return TypeScore{}, false
}

// Evaluator runs a detector over labelled samples and scores it.
type Evaluator struct {
	// detector finds the entities of each sample.
	detector *detect.Detector

	// opts are the detection options. EntityTypes is replaced by the
	// evaluated types.
	opts detect.Options

	// labels maps data set labels to entity types.
	labels map[string]string

	// beta weights recall against precision in the F score.
	beta float64

	// concurrency is the number of samples detected at once.
	concurrency int

	// logger is used for progress logging.
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLabels sets the label map. Keys are data set labels without IOB
// prefix and values are entity types.
func WithLabels(labels map[string]string) Option {
	return func(e *Evaluator) {
		e.labels = labels
	}
}

// WithBeta sets the F-score beta.
func WithBeta(beta float64) Option {
	return func(e *Evaluator) {
		e.beta = beta
	}
}

// WithConcurrency sets the number of samples detected at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// New creates an Evaluator for detector with the given detection options.
func New(detector *detect.Detector, opts detect.Options, evalOpts ...Option) *Evaluator {
	e := &Evaluator{
		detector:    detector,
		opts:        opts,
		labels:      DefaultLabels(),
		beta:        DefaultBeta,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range evalOpts {
		opt(e)
	}
	return e
}

// Types returns the evaluated entity types, upper-cased and sorted.
func (e *Evaluator) Types() []string {
	set := make(map[string]bool, len(e.labels))
	for _, typ := range e.labels {
		set[strings.ToUpper(typ)] = true
	}
	return slices.Sorted(maps.Keys(set))
}

// counts are the character counts of one sample, indexed by type code.
type counts struct {
	annotated []int
	predicted []int
	correct   []int
	err       *SampleError
}

// Evaluate detects the entities of every sample and scores them against
// the ground truth. Any detection error stops the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, samples []Sample) (*Result, error) {
	if len(e.labels) == 0 {
		return nil, ErrNoLabels
	}
	if e.beta <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBeta, e.beta)
	}

	types := e.Types()
	codes := make(map[string]int, len(types))
	for i, typ := range types {
		codes[typ] = i + 1
	}

	opts := e.opts
	opts.EntityTypes = types

	e.logger.Info("starting evaluation",
		"model", opts.Model.String(),
		"samples", len(samples),
		"types", types,
	)
	start := time.Now()

	perSample := make([]counts, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, s := range samples {
		g.Go(func() error {
			c, err := e.evaluateSample(gctx, i, s, codes, opts)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			perSample[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := len(types) + 1
	annotated, predicted, correct := make([]int, n), make([]int, n), make([]int, n)
	res := &Result{Model: opts.Model.String(), Beta: e.beta, Samples: len(samples)}
	for _, c := range perSample {
		for code := 1; code < n; code++ {
			annotated[code] += c.annotated[code]
			predicted[code] += c.predicted[code]
			correct[code] += c.correct[code]
		}
		if c.err != nil {
			res.Errors = append(res.Errors, *c.err)
		}
	}
	for i, typ := range types {
		code := i + 1
		res.Scores = append(res.Scores, newTypeScore(typ, annotated[code], predicted[code], correct[code], e.beta))
	}

	e.logger.Info("evaluation complete",
		"samples", len(samples),
		"with_errors", len(res.Errors),
		"elapsed", time.Since(start),
	)
	return res, nil
}

// evaluateSample detects the entities of one sample and counts its
// characters per type code.
func (e *Evaluator) evaluateSample(ctx context.Context, index int, s Sample, codes map[string]int, opts detect.Options) (counts, error) {
	entities, err := e.detector.Analyze(ctx, s.Text, opts)
	if err != nil {
		return counts{}, err
	}
	pred := locate(s.Text, entities)
	truth := e.translate(s.Spans)

	runes := []rune(s.Text)
	truthCode, err := EncodeLabels(len(runes), truth, codes)
	if err != nil {
		return counts{}, err
	}
	predCode, err := EncodeLabels(len(runes), pred, codes)
	if err != nil {
		return counts{}, err
	}

	n := len(codes) + 1
	c := counts{annotated: make([]int, n), predicted: make([]int, n), correct: make([]int, n)}
	for i := range runes {
		t, p := truthCode[i], predCode[i]
		c.annotated[t]++
		c.predicted[p]++
		if t == p {
			c.correct[t]++
		}
	}

	se := SampleError{Index: index, Text: s.Text}
	for _, sc := range spanScores(runes, truth, predCode, codes) {
		if sc.Score < 1 {
			se.Missed = append(se.Missed, sc)
		}
	}
	for _, sc := range spanScores(runes, pred, truthCode, codes) {
		if sc.Score < 1 {
			se.Spurious = append(se.Spurious, sc)
		}
	}
	if len(se.Missed) > 0 || len(se.Spurious) > 0 {
		c.err = &se
	}
	return c, nil
}

// translate maps ground truth spans to entity types and drops spans whose
// label has no mapping.
func (e *Evaluator) translate(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		typ, ok := e.labels[s.Type]
		if !ok {
			continue
		}
		s.Type = strings.ToUpper(typ)
		out = append(out, s)
	}
	return out
}
