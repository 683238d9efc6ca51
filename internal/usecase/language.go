package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

type languageProfile struct {
	stopwords map[string]struct{}
	letters   string
}

var languageProfiles = map[string]languageProfile{
	"en": {
		stopwords: wordSet("the", "and", "is", "my", "name", "i", "i'm", "am", "hello", "hi", "hey",
			"what", "why", "how", "you", "your", "yes", "no", "please", "thanks", "thank", "it", "this",
			"do", "does", "want", "need", "number", "phone", "password", "farm", "of", "to", "a", "have"),
	},
	"sl": {
		stopwords: wordSet("je", "in", "sem", "ime", "mi", "moje", "moj", "priimek", "živjo", "zdravo",
			"pozdravljeni", "dober", "dan", "hvala", "prosim", "da", "ne", "kaj", "zakaj", "kako", "ali",
			"telefon", "številka", "geslo", "kmetija", "imam", "se", "pa", "lahko"),
		letters: "čšž",
	},
	"es": {
		stopwords: wordSet("el", "la", "los", "las", "y", "es", "mi", "nombre", "me", "llamo", "soy",
			"hola", "buenos", "días", "gracias", "por", "favor", "sí", "qué", "cómo", "que",
			"teléfono", "número", "contraseña", "granja", "tengo", "de", "un", "una", "apellido", "con"),
		letters: "ñ¿¡áéíóú",
	},
}

func wordSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// LanguageDetector picks the reply locale for a turn from a fixed set of
// supported locales. It never fails; without any signal it keeps the
// previous locale or falls back.
type LanguageDetector struct {
	supported []string
	fallback  string
	matcher   language.Matcher
}

// NewLanguageDetector validates the supported set and fallback.
func NewLanguageDetector(supported []string, fallback string) (*LanguageDetector, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("at least one supported locale is required")
	}
	tags := make([]language.Tag, 0, len(supported))
	codes := make([]string, 0, len(supported))
	for _, code := range supported {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", code, err)
		}
		base, _ := tag.Base()
		tags = append(tags, tag)
		codes = append(codes, base.String())
	}
	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("parse fallback locale %q: %w", fallback, err)
	}
	fallbackBase, _ := fallbackTag.Base()
	found := false
	for _, c := range codes {
		if c == fallbackBase.String() {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("fallback locale %q is not supported", fallback)
	}
	return &LanguageDetector{supported: codes, fallback: fallbackBase.String(), matcher: language.NewMatcher(tags)}, nil
}

// Fallback returns the configured fallback locale.
func (d *LanguageDetector) Fallback() string {
	return d.fallback
}

// Detect returns the locale for text, or the fallback when text carries no signal.
func (d *LanguageDetector) Detect(text string) string {
	return d.DetectWithHint(text, "", "")
}

// DetectWithHint resolves the locale in order: text heuristics, the previous
// session locale, the channel hint (an Accept-Language value), the fallback.
func (d *LanguageDetector) DetectWithHint(text, hint, previous string) string {
	if code, ok := d.scoreText(text); ok {
		return code
	}
	if d.isSupported(previous) {
		return previous
	}
	if code, ok := d.matchHint(hint); ok {
		return code
	}
	return d.fallback
}

func (d *LanguageDetector) scoreText(text string) (string, bool) {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	best, bestScore, tie := "", 0, false
	for _, code := range d.supported {
		profile, ok := languageProfiles[code]
		if !ok {
			continue
		}
		score := 0
		for _, w := range words {
			if _, hit := profile.stopwords[w]; hit {
				score += 2
			}
		}
		if profile.letters != "" && strings.ContainsAny(lower, profile.letters) {
			score += 3
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = code, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return "", false
	}
	return best, true
}

func (d *LanguageDetector) matchHint(hint string) (string, bool) {
	if strings.TrimSpace(hint) == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(hint)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, index, confidence := d.matcher.Match(tags...)
	if confidence == language.No {
		return "", false
	}
	return d.supported[index], true
}

func (d *LanguageDetector) isSupported(code string) bool {
	for _, c := range d.supported {
		if c == code {
			return true
		}
	}
	return false
}
