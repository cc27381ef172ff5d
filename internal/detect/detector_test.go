package detect

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"

	"github.com/nao1215/piiscrub/internal/model"
)

// staticHandler returns a Handler that always reports entities and counts
// its calls.
func staticHandler(calls *atomic.Int32, entities ...model.Entity) Handler {
	return func(_ context.Context, _, _ string) ([]model.Entity, error) {
		calls.Add(1)
		return entities, nil
	}
}

// TestDetectEntities tests the facade end to end with a fake backend.
func TestDetectEntities(t *testing.T) {
	t.Parallel()

	t.Run("filters by threshold and deduplicates in order", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		reg := NewRegistry()
		reg.Register(ModelComprehend, staticHandler(&calls,
			model.Entity{Text: "John", Type: "PERSON", Score: 0.99},
			model.Entity{Text: "555-1234", Type: "OTHER", Score: 0.95},
			model.Entity{Text: "maybe", Type: "OTHER", Score: 0.5},
			model.Entity{Text: "John", Type: "PERSON", Score: 0.97},
			model.Entity{Text: "john", Type: "PERSON", Score: 0.97},
		))

		got, err := NewDetector(reg).DetectEntities(context.Background(), "Call John at 555-1234", DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"John", "555-1234", "john"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("score equal to threshold is excluded", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		reg := NewRegistry()
		reg.Register(ModelComprehend, staticHandler(&calls,
			model.Entity{Text: "edge", Score: 0.9},
		))

		got, err := NewDetector(reg).DetectEntities(context.Background(), "edge", DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no entities, got %q", got)
		}
	})

	t.Run("whitespace input does not call the backend", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		reg := NewRegistry()
		reg.Register(ModelComprehend, staticHandler(&calls, model.Entity{Text: "x", Score: 1}))

		for _, text := range []string{"", "   ", "\n\t"} {
			got, err := NewDetector(reg).DetectEntities(context.Background(), text, DefaultOptions())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty non-nil list for %q, got %v", text, got)
			}
		}
		if n := calls.Load(); n != 0 {
			t.Errorf("expected no backend calls, got %d", n)
		}
	})

	t.Run("backend failure wraps ErrDetection", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("throttled")
		reg := NewRegistry()
		reg.Register(ModelComprehend, func(context.Context, string, string) ([]model.Entity, error) {
			return nil, boom
		})

		_, err := NewDetector(reg).DetectEntities(context.Background(), "text", DefaultOptions())
		if !errors.Is(err, ErrDetection) {
			t.Errorf("expected ErrDetection, got %v", err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("expected cause in chain, got %v", err)
		}
	})

	t.Run("unregistered model is unsupported", func(t *testing.T) {
		t.Parallel()

		opts := DefaultOptions()
		opts.Model = ModelSpacy

		_, err := NewDetector(NewRegistry()).DetectEntities(context.Background(), "text", opts)

		var ue *UnsupportedError
		if !errors.As(err, &ue) || ue.Model != ModelSpacy {
			t.Fatalf("expected UnsupportedError for spacy, got %v", err)
		}
		if !errors.Is(err, ErrUnsupported) {
			t.Error("expected error to match ErrUnsupported")
		}
	})

	t.Run("invalid threshold", func(t *testing.T) {
		t.Parallel()

		opts := DefaultOptions()
		opts.Threshold = 1.5
		_, err := NewDetector(NewRegistry()).DetectEntities(context.Background(), "text", opts)
		if !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("expected ErrInvalidThreshold, got %v", err)
		}
	})

	t.Run("unsupported language", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		reg := NewRegistry()
		reg.Register(ModelComprehend, staticHandler(&calls))

		opts := DefaultOptions()
		opts.Language = "tlh"
		_, err := NewDetector(reg).DetectEntities(context.Background(), "text", opts)
		if !errors.Is(err, ErrUnsupportedLanguage) {
			t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
		}
	})

	t.Run("language is passed normalized", func(t *testing.T) {
		t.Parallel()

		var gotLang string
		reg := NewRegistry()
		reg.Register(ModelComprehend, func(_ context.Context, _, lang string) ([]model.Entity, error) {
			gotLang = lang
			return nil, nil
		})

		opts := DefaultOptions()
		opts.Language = "zh-tw"
		if _, err := NewDetector(reg).DetectEntities(context.Background(), "text", opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotLang != "zh-TW" {
			t.Errorf("got language %q", gotLang)
		}
	})
}

// TestFilter tests thresholding, type allowlisting and deduplication.
func TestFilter(t *testing.T) {
	t.Parallel()

	entities := []model.Entity{
		{Text: "John", Type: "PERSON", Score: 0.99},
		{Text: "Acme", Type: "ORGANIZATION", Score: 0.99},
		{Text: "", Type: "PERSON", Score: 0.99},
		{Text: "Paris", Type: "LOCATION", Score: 0.95},
	}

	got := Filter(entities, 0.9, []string{"person", "Location"})
	if len(got) != 2 || got[0].Text != "John" || got[1].Text != "Paris" {
		t.Errorf("unexpected result: %+v", got)
	}

	if got := Filter(nil, 0.9, nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

// TestFilterProperties checks the output invariants for arbitrary input.
func TestFilterProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		entities := make([]model.Entity, n)
		for i := range entities {
			entities[i] = model.Entity{
				Text:  rapid.SampledFrom([]string{"a", "b", "c", "A", " a", "d"}).Draw(rt, "text"),
				Type:  "OTHER",
				Score: rapid.Float64Range(0, 1).Draw(rt, "score"),
			}
		}
		threshold := rapid.Float64Range(0, 1).Draw(rt, "threshold")

		got := Filter(entities, threshold, nil)

		seen := make(map[string]bool)
		for _, e := range got {
			if e.Score <= threshold {
				rt.Fatalf("entity %q has score %v <= threshold %v", e.Text, e.Score, threshold)
			}
			if seen[e.Text] {
				rt.Fatalf("duplicate entity %q", e.Text)
			}
			seen[e.Text] = true
		}

		// Every text that passed the threshold somewhere is present.
		for _, e := range entities {
			if e.Score > threshold && !seen[e.Text] {
				rt.Fatalf("entity %q missing from result", e.Text)
			}
		}
	})
}

// TestParseModel tests model name parsing.
func TestParseModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Model
		wantErr bool
	}{
		{in: "comprehend", want: ModelComprehend},
		{in: "Comprehend-PII", want: ModelComprehendPII},
		{in: " spacy ", want: ModelSpacy},
		{in: "FLAIR", want: ModelFlair},
		{in: "pattern", want: ModelPattern},
		{in: "bert", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseModel(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownModel) {
					t.Errorf("expected ErrUnknownModel, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %v, %v; want %v", got, err, tt.want)
			}
			if got.String() != roundTripName(t, got) {
				t.Errorf("String round trip failed for %v", got)
			}
		})
	}

	if s := Model(99).String(); s != "model(99)" {
		t.Errorf("unknown model string: %q", s)
	}
}

// roundTripName re-parses the model name and returns its string form.
func roundTripName(t *testing.T, m Model) string {
	t.Helper()

	var parsed Model
	if err := parsed.UnmarshalText([]byte(m.String())); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	return parsed.String()
}

// TestRegistrySupported tests the supported model listing.
func TestRegistrySupported(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	NewComprehend(nil).Register(reg)

	got := reg.Supported()
	if len(got) != 2 || got[0] != ModelComprehend || got[1] != ModelComprehendPII {
		t.Errorf("unexpected supported models: %v", got)
	}
}

// TestNormalizeLanguage tests language validation.
func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "en"},
		{in: "en", want: "en"},
		{in: "EN", want: "en"},
		{in: "ja", want: "ja"},
		{in: "zh-TW", want: "zh-TW"},
		{in: "xx-invalid-!!", wantErr: true},
		{in: "sv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeLanguage(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedLanguage) {
					t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}
