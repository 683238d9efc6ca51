package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

// Password check codes. Only CodeTooShort rejects; the rest are advisory.
const (
	CodeTooShort     = "min_length"
	CodeNoLetter     = "letter"
	CodeNoDigit      = "digit"
	CodeGuessable    = "weak_password"
	CodePersonalInfo = "personal_info"
)

const (
	// MinPasswordLength is the only hard password requirement.
	MinPasswordLength    = 8
	defaultAdvisoryScore = 2
	// Shorter inputs (initials, short surnames) match too many passwords to be useful.
	minPersonalInputLen = 3
)

// PasswordValidationError describes why a password was refused.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// advisoryCheck reports whether a password misses an advisory rule.
type advisoryCheck struct {
	code   string
	misses func(password string, userInputs []string) bool
}

// PasswordPolicy rejects passwords below the minimum length and reports
// everything else as warnings the farmer may ignore.
type PasswordPolicy struct {
	minLength     int
	advisoryScore int
	checks        []advisoryCheck
}

// PolicyOption adjusts a PasswordPolicy.
type PolicyOption func(*PasswordPolicy)

// WithMinLength overrides MinPasswordLength.
func WithMinLength(n int) PolicyOption {
	return func(p *PasswordPolicy) {
		if n > 0 {
			p.minLength = n
		}
	}
}

// WithAdvisoryScore sets the zxcvbn score (0-4) below which a password is
// flagged as guessable. Zero disables the strength estimate.
func WithAdvisoryScore(score int) PolicyOption {
	return func(p *PasswordPolicy) {
		p.advisoryScore = min(max(score, 0), 4)
	}
}

// NewPasswordPolicy builds the onboarding password policy.
func NewPasswordPolicy(opts ...PolicyOption) *PasswordPolicy {
	p := &PasswordPolicy{minLength: MinPasswordLength, advisoryScore: defaultAdvisoryScore}
	for _, opt := range opts {
		opt(p)
	}
	p.checks = []advisoryCheck{
		{code: CodeNoLetter, misses: func(pw string, _ []string) bool { return !containsRune(pw, unicode.IsLetter) }},
		{code: CodeNoDigit, misses: func(pw string, _ []string) bool { return !containsRune(pw, unicode.IsDigit) }},
		{code: CodePersonalInfo, misses: containsPersonalInput},
		{code: CodeGuessable, misses: p.guessable},
	}
	return p
}

// Check returns a *PasswordValidationError when the password is too short,
// otherwise the codes of the advisory checks it misses. userInputs are the
// farmer's own details, which make a password easier to guess.
func (p *PasswordPolicy) Check(password string, userInputs []string) ([]string, error) {
	if utf8.RuneCountInString(password) < p.minLength {
		return nil, &PasswordValidationError{
			Code:    CodeTooShort,
			Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
		}
	}
	var warnings []string
	for _, c := range p.checks {
		if c.misses(password, userInputs) {
			warnings = append(warnings, c.code)
		}
	}
	return warnings, nil
}

func (p *PasswordPolicy) guessable(password string, userInputs []string) bool {
	if p.advisoryScore == 0 {
		return false
	}
	return zxcvbn.PasswordStrength(password, userInputs).Score < p.advisoryScore
}

func containsRune(s string, pred func(rune) bool) bool {
	return strings.IndexFunc(s, pred) >= 0
}

// containsPersonalInput flags passwords that embed a name or the last
// digits of the phone number.
func containsPersonalInput(password string, userInputs []string) bool {
	lower := strings.ToLower(password)
	for _, in := range userInputs {
		in = strings.ToLower(strings.TrimSpace(in))
		if strings.HasPrefix(in, "+") {
			digits := strings.TrimPrefix(in, "+")
			if len(digits) > 6 {
				in = digits[len(digits)-6:]
			}
		}
		if utf8.RuneCountInString(in) >= minPersonalInputLen && strings.Contains(lower, in) {
			return true
		}
	}
	return false
}

var _ port.PasswordPolicy = (*PasswordPolicy)(nil)
