package detect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/piiscrub/internal/model"
)

const (
	// DefaultMaxTextBytes is the Comprehend synchronous request limit in
	// UTF-8 bytes.
	DefaultMaxTextBytes = 100000

	// DefaultChunkConcurrency is how many chunks of one text are sent at once.
	DefaultChunkConcurrency = 4
)

// ComprehendAPI is the subset of the Comprehend client used for detection.
// *comprehend.Client satisfies it.
type ComprehendAPI interface {
	DetectEntities(ctx context.Context, in *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
	DetectPiiEntities(ctx context.Context, in *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
}

// Comprehend provides the AWS Comprehend handlers.
type Comprehend struct {
	api              ComprehendAPI
	maxTextBytes     int
	chunkConcurrency int
	logger           *slog.Logger
}

// ComprehendOption configures a Comprehend backend.
type ComprehendOption func(*Comprehend)

// WithMaxTextBytes sets the chunk size limit.
func WithMaxTextBytes(n int) ComprehendOption {
	return func(c *Comprehend) {
		if n > 0 {
			c.maxTextBytes = n
		}
	}
}

// WithChunkConcurrency sets how many chunks are detected concurrently.
func WithChunkConcurrency(n int) ComprehendOption {
	return func(c *Comprehend) {
		if n > 0 {
			c.chunkConcurrency = n
		}
	}
}

// WithComprehendLogger sets the logger of the backend.
func WithComprehendLogger(logger *slog.Logger) ComprehendOption {
	return func(c *Comprehend) {
		c.logger = logger
	}
}

// NewComprehend creates a backend on api.
func NewComprehend(api ComprehendAPI, opts ...ComprehendOption) *Comprehend {
	c := &Comprehend{
		api:              api,
		maxTextBytes:     DefaultMaxTextBytes,
		chunkConcurrency: DefaultChunkConcurrency,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the Comprehend handlers for ModelComprehend and
// ModelComprehendPII.
func (c *Comprehend) Register(r *Registry) {
	r.Register(ModelComprehend, c.Entities)
	r.Register(ModelComprehendPII, c.PIIEntities)
}

// Entities is the Handler for ModelComprehend.
func (c *Comprehend) Entities(ctx context.Context, text, language string) ([]model.Entity, error) {
	return c.detectChunks(ctx, text, func(ctx context.Context, piece string) ([]model.Entity, error) {
		out, err := c.api.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
			Text:         aws.String(piece),
			LanguageCode: types.LanguageCode(language),
		})
		if err != nil {
			return nil, err
		}

		entities := make([]model.Entity, 0, len(out.Entities))
		for _, e := range out.Entities {
			entities = append(entities, model.Entity{
				Text:  aws.ToString(e.Text),
				Type:  string(e.Type),
				Score: float64(aws.ToFloat32(e.Score)),
			})
		}
		return entities, nil
	})
}

// PIIEntities is the Handler for ModelComprehendPII. The service reports
// offsets only, so the entity text is cut from the input by rune offset.
func (c *Comprehend) PIIEntities(ctx context.Context, text, language string) ([]model.Entity, error) {
	return c.detectChunks(ctx, text, func(ctx context.Context, piece string) ([]model.Entity, error) {
		out, err := c.api.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
			Text:         aws.String(piece),
			LanguageCode: types.LanguageCode(language),
		})
		if err != nil {
			return nil, err
		}

		runes := []rune(piece)
		entities := make([]model.Entity, 0, len(out.Entities))
		for _, e := range out.Entities {
			begin := int(aws.ToInt32(e.BeginOffset))
			end := int(aws.ToInt32(e.EndOffset))
			if begin < 0 || end > len(runes) || begin >= end {
				c.logger.Debug("skipping entity with out-of-range offsets",
					"begin", begin,
					"end", end,
				)
				continue
			}
			entities = append(entities, model.Entity{
				Text:  string(runes[begin:end]),
				Type:  string(e.Type),
				Score: float64(aws.ToFloat32(e.Score)),
			})
		}
		return entities, nil
	})
}

// detectChunks runs fn over each chunk of text and concatenates the results
// in chunk order. The first failure cancels the remaining chunks.
func (c *Comprehend) detectChunks(
	ctx context.Context,
	text string,
	fn func(context.Context, string) ([]model.Entity, error),
) ([]model.Entity, error) {
	chunks := splitChunks(text, c.maxTextBytes)
	if len(chunks) == 1 {
		return fn(ctx, chunks[0])
	}

	c.logger.Debug("splitting text for detection",
		"bytes", len(text),
		"chunks", len(chunks),
	)

	results := make([][]model.Entity, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.chunkConcurrency)
	for i, piece := range chunks {
		g.Go(func() error {
			entities, err := fn(gctx, piece)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.Entity
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
