package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nao1215/piiscrub/internal/model"
)

// DefaultThreshold is the confidence threshold used when none is given.
// Entities must score strictly above it.
const DefaultThreshold = 0.9

// Handler detects entities in text. It returns every entity the backend
// reports, unfiltered; thresholding and deduplication are applied by the
// Detector.
type Handler func(ctx context.Context, text, language string) ([]model.Entity, error)

// Registry maps each Model to the Handler that implements it.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Model]Handler
}

// NewRegistry creates an empty registry. Every Model is unsupported until a
// Handler is registered for it.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Model]Handler)}
}

// Register sets the Handler for m, replacing any previous one.
func (r *Registry) Register(m Model, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[m] = h
}

// Handler returns the Handler for m, or an *UnsupportedError.
func (r *Registry) Handler(m Model) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[m]
	if !ok || h == nil {
		return nil, &UnsupportedError{Model: m}
	}
	return h, nil
}

// Supported returns the models that have a Handler, in declaration order.
func (r *Registry) Supported() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Model, 0, len(r.handlers))
	for _, m := range Models() {
		if _, ok := r.handlers[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Options are the parameters of one detection call.
type Options struct {
	// Model selects the backend. Zero means DefaultModel.
	Model Model

	// Language is the language code of the text. Empty means DefaultLanguage.
	Language string

	// Threshold is the exclusive lower bound on entity confidence.
	Threshold float64

	// EntityTypes, when non-empty, keeps only entities of these types.
	// Types are compared case-insensitively.
	EntityTypes []string
}

// DefaultOptions returns options with the default model, language and
// threshold.
func DefaultOptions() Options {
	return Options{
		Model:     DefaultModel,
		Language:  DefaultLanguage,
		Threshold: DefaultThreshold,
	}
}

// Detector is the detection facade.
type Detector struct {
	// registry resolves the backend for each call.
	registry *Registry

	// logger is used for structured logging.
	logger *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLogger sets a custom logger for the detector.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector creates a detector that resolves backends from registry.
func NewDetector(registry *Registry, opts ...DetectorOption) *Detector {
	d := &Detector{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectEntities returns the distinct texts of the entities in text scoring
// strictly above opts.Threshold. The text must already be free of markup.
// Empty or whitespace-only text returns an empty list without calling the
// backend.
func (d *Detector) DetectEntities(ctx context.Context, text string, opts Options) ([]string, error) {
	entities, err := d.Analyze(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = e.Text
	}
	return texts, nil
}

// Analyze is DetectEntities with the entity type and score kept. For
// entities detected more than once, the first occurrence is returned.
func (d *Detector) Analyze(ctx context.Context, text string, opts Options) ([]model.Entity, error) {
	if opts.Model == 0 {
		opts.Model = DefaultModel
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, opts.Threshold)
	}
	lang, err := NormalizeLanguage(opts.Language)
	if err != nil {
		return nil, err
	}

	h, err := d.registry.Handler(opts.Model)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return []model.Entity{}, nil
	}

	raw, err := h(ctx, text, lang)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDetection, opts.Model, err)
	}

	out := Filter(raw, opts.Threshold, opts.EntityTypes)
	d.logger.Debug("entities detected",
		"model", opts.Model.String(),
		"language", lang,
		"raw", len(raw),
		"kept", len(out),
	)
	return out, nil
}

// Filter keeps the entities scoring strictly above threshold whose type is
// in types (when types is non-empty), and removes later duplicates by exact
// text. Entities with empty text are dropped.
func Filter(entities []model.Entity, threshold float64, types []string) []model.Entity {
	var allowed map[string]bool
	if len(types) > 0 {
		allowed = make(map[string]bool, len(types))
		for _, t := range types {
			allowed[strings.ToUpper(t)] = true
		}
	}

	seen := make(map[string]bool, len(entities))
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Text == "" || e.Score <= threshold {
			continue
		}
		if allowed != nil && !allowed[strings.ToUpper(e.Type)] {
			continue
		}
		if seen[e.Text] {
			continue
		}
		seen[e.Text] = true
		out = append(out, e)
	}
	return out
}
