package detect

import (
	"fmt"

	"golang.org/x/text/language"
)

// DefaultLanguage is the language code used when none is given.
const DefaultLanguage = "en"

// supportedLanguages are the language tags accepted by Comprehend entity
// detection.
var supportedLanguages = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
	language.German,
	language.Italian,
	language.Portuguese,
	language.Arabic,
	language.Hindi,
	language.Japanese,
	language.Korean,
	language.Chinese,
	language.MustParse("zh-TW"),
}

// NormalizeLanguage validates code and returns its canonical form
// (e.g. "EN" becomes "en", "zh-tw" becomes "zh-TW"). An empty code yields
// DefaultLanguage.
func NormalizeLanguage(code string) (string, error) {
	if code == "" {
		return DefaultLanguage, nil
	}

	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrUnsupportedLanguage, code, err)
	}

	for _, s := range supportedLanguages {
		if s == tag {
			return tag.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
}
