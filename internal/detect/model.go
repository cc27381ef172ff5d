package detect

import (
	"fmt"
	"strings"
)

// Model is a detection backend variant.
type Model int

const (
	// ModelComprehend is AWS Comprehend named-entity recognition.
	ModelComprehend Model = iota + 1

	// ModelComprehendPII is AWS Comprehend PII entity recognition.
	ModelComprehendPII

	// ModelSpacy is a spaCy NER backend. It has no implementation.
	ModelSpacy

	// ModelFlair is a Flair NER backend. It has no implementation.
	ModelFlair

	// ModelPattern is the offline regular-expression backend.
	ModelPattern
)

// DefaultModel is the backend used when none is configured.
const DefaultModel = ModelComprehend

// modelNames maps each Model to its canonical name.
var modelNames = map[Model]string{
	ModelComprehend:    "comprehend",
	ModelComprehendPII: "comprehend-pii",
	ModelSpacy:         "spacy",
	ModelFlair:         "flair",
	ModelPattern:       "pattern",
}

// Models returns every known Model in declaration order.
func Models() []Model {
	return []Model{ModelComprehend, ModelComprehendPII, ModelSpacy, ModelFlair, ModelPattern}
}

// String returns the canonical name of the model.
func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("model(%d)", int(m))
}

// ParseModel returns the Model with the given name, ignoring case.
func ParseModel(name string) (Model, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for m, mn := range modelNames {
		if mn == n {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Set implements pflag.Value so a Model can be bound directly to a flag.
func (m *Model) Set(s string) error {
	parsed, err := ParseModel(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *Model) Type() string {
	return "model"
}

// UnmarshalText implements encoding.TextUnmarshaler for config files.
func (m *Model) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (m Model) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
