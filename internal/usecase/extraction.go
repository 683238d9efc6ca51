package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

// Extraction strategies reported in results and metrics.
const (
	StrategyModel = "model"
	StrategyRules = "rules"
)

const defaultExtractionTimeout = 8 * time.Second

var (
	// +-prefixed runs need 6 digits, bare runs 8, so ages and hectares are not read as phones.
	plusPhonePattern = regexp.MustCompile(`\+\s?\d[\d\s\-().]{4,}\d`)
	barePhonePattern = regexp.MustCompile(`\d[\d\s\-().]{6,}\d`)

	greetingPrefixes = []string{
		"my name is", "my first name is", "my last name is", "my surname is", "i am", "i'm", "it's", "it is",
		"ime mi je", "moje ime je", "moj priimek je", "jaz sem", "sem",
		"me llamo", "mi nombre es", "mi apellido es", "soy",
	}
	greetingWords = wordSet(
		"hi", "hello", "hey", "good", "morning", "evening", "afternoon", "thanks", "thank", "you", "ok", "okay", "yes", "no",
		"živjo", "zdravo", "pozdravljeni", "dober", "dan", "hvala", "ja", "ne", "prosim",
		"hola", "buenos", "días", "buenas", "tardes", "gracias", "sí", "vale",
	)
	cancelPhrases = wordSet(
		"cancel", "stop", "quit", "exit", "abort", "cancel registration", "stop registration",
		"prekliči", "preklici", "prekini", "nehaj", "konec",
		"cancelar", "salir", "parar", "detener",
	)
)

// RuleExtractor is the deterministic extraction strategy. It recognizes
// phone numbers, bare names and cancel keywords.
type RuleExtractor struct{}

// NewRuleExtractor constructs the rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// IsCancel reports whether text is an explicit request to stop.
func (RuleExtractor) IsCancel(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(strings.Trim(text, " .!?¡¿")))
	_, ok := cancelPhrases[normalized]
	return ok
}

// Extract proposes values for missing fields from text.
func (r *RuleExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	result := &domain.ExtractionResult{
		Updates:    make(map[domain.Field]string),
		Confidence: make(map[domain.Field]float64),
		Strategy:   StrategyRules,
	}
	if r.IsCancel(req.Message) {
		result.Abandon = true
		return result, nil
	}

	missing := make(map[domain.Field]bool, len(req.Missing))
	for _, f := range req.Missing {
		missing[f] = true
	}

	rest := req.Message
	if loc := plusPhonePattern.FindStringIndex(rest); loc != nil {
		if missing[domain.FieldPhoneNumber] {
			result.Updates[domain.FieldPhoneNumber] = strings.TrimSpace(rest[loc[0]:loc[1]])
			result.Confidence[domain.FieldPhoneNumber] = 0.9
		}
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
	} else if loc := barePhonePattern.FindStringIndex(rest); loc != nil {
		if missing[domain.FieldPhoneNumber] {
			result.Updates[domain.FieldPhoneNumber] = strings.TrimSpace(rest[loc[0]:loc[1]])
			result.Confidence[domain.FieldPhoneNumber] = 0.6
		}
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
	}

	words := nameWords(rest)
	if len(words) == 0 {
		return result, nil
	}
	switch {
	case missing[domain.FieldFirstName] && missing[domain.FieldLastName] && len(words) == 2:
		result.Updates[domain.FieldFirstName] = words[0]
		result.Updates[domain.FieldLastName] = words[1]
		result.Confidence[domain.FieldFirstName] = 0.7
		result.Confidence[domain.FieldLastName] = 0.7
	case len(words) <= 2:
		for _, f := range req.Missing {
			if f == domain.FieldFirstName || f == domain.FieldLastName {
				result.Updates[f] = strings.Join(words, " ")
				result.Confidence[f] = 0.6
				break
			}
		}
	}
	return result, nil
}

// nameWords strips greetings and introductions and returns what is left
// when it reads like a bare name. Questions and longer sentences yield nil.
func nameWords(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.ContainsAny(trimmed, "?¿") {
		return nil
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range greetingPrefixes {
		idx := strings.Index(lower, prefix+" ")
		if idx < 0 || (idx > 0 && !strings.ContainsRune(" ,.!", rune(lower[idx-1]))) {
			continue
		}
		trimmed = trimmed[idx+len(prefix)+1:]
		break
	}
	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == '!' || r == ';' || r == ':'
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, greeting := greetingWords[strings.ToLower(f)]; greeting {
			continue
		}
		for _, r := range f {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' && r != '’' {
				return nil
			}
		}
		words = append(words, f)
	}
	if len(words) > 3 {
		return nil
	}
	return words
}

// ExtractionAdapter runs the language model under a deadline and falls
// back to the rule extractor on any failure. It never returns an error.
type ExtractionAdapter struct {
	model   port.LanguageModel
	rules   *RuleExtractor
	timeout time.Duration
	metrics port.RegistrationMetrics
	logger  *zap.Logger
}

// NewExtractionAdapter wires the strategies. model may be nil, in which
// case only rules are used.
func NewExtractionAdapter(model port.LanguageModel, rules *RuleExtractor, timeout time.Duration, metrics port.RegistrationMetrics, logger *zap.Logger) *ExtractionAdapter {
	if rules == nil {
		rules = NewRuleExtractor()
	}
	if timeout <= 0 {
		timeout = defaultExtractionTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionAdapter{model: model, rules: rules, timeout: timeout, metrics: metrics, logger: logger}
}

// Rules exposes the deterministic extractor.
func (a *ExtractionAdapter) Rules() *RuleExtractor {
	return a.rules
}

// Extract returns the model's result, or the rule result when the model is
// disabled, slow, failing or incoherent. The password field is never
// extracted here.
func (a *ExtractionAdapter) Extract(ctx context.Context, req domain.ExtractionRequest) *domain.ExtractionResult {
	req.Missing = withoutPassword(req.Missing)
	if a.model != nil {
		res, err := a.callModel(ctx, req)
		if err == nil {
			a.metrics.IncExtraction(StrategyModel, "ok")
			return sanitize(res, req.Missing)
		}
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		a.metrics.IncExtraction(StrategyModel, outcome)
		a.logger.Warn("language model extraction failed, using rules",
			zap.String("model", a.model.Name()),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
	res, _ := a.rules.Extract(ctx, req)
	a.metrics.IncExtraction(StrategyRules, "ok")
	return sanitize(res, req.Missing)
}

func (a *ExtractionAdapter) callModel(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	res, err := a.model.Extract(callCtx, req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtractionUnavailable, callCtx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty result", ErrExtractionUnavailable)
	}
	res.Strategy = StrategyModel
	return res, nil
}

// sanitize drops updates for fields that are not missing and blank values.
func sanitize(res *domain.ExtractionResult, missing []domain.Field) *domain.ExtractionResult {
	allowed := make(map[domain.Field]bool, len(missing))
	for _, f := range missing {
		allowed[f] = true
	}
	clean := make(map[domain.Field]string, len(res.Updates))
	for f, v := range res.Updates {
		if !allowed[f] || strings.TrimSpace(v) == "" {
			continue
		}
		clean[f] = strings.TrimSpace(v)
	}
	res.Updates = clean
	res.ReplyText = strings.TrimSpace(res.ReplyText)
	return res
}

func withoutPassword(fields []domain.Field) []domain.Field {
	out := make([]domain.Field, 0, len(fields))
	for _, f := range fields {
		if f != domain.FieldPassword {
			out = append(out, f)
		}
	}
	return out
}
