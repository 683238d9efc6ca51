package usecase

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/security"
)

// Rejection codes shared by validators and the reply catalog.
const (
	CodeEmpty              = "empty"
	CodeTooLong            = "too_long"
	CodeInvalidCharacters  = "invalid_characters"
	CodeLooksLikePhone     = "looks_like_phone"
	CodePlaceName          = "place_name"
	CodeMissingCountryCode = "missing_country_code"
	CodeTooShort           = "too_short"
	CodeMinLength          = "min_length"
	CodeMismatch           = "mismatch"
)

const (
	maxNameRunes    = 50
	minPhoneDigits  = 8
	maxPhoneDigits  = 15
	phoneSeparators = " -.()/"
)

var phoneLikePattern = regexp.MustCompile(`^\+?[\d\s\-().]{6,}$`)

// placeNames is a small gazetteer of places farmers tend to answer with
// when asked for a name. Keys are lower case and diacritic-free.
var placeNames = map[string]struct{}{
	"ljubljana": {}, "maribor": {}, "celje": {}, "kranj": {}, "koper": {},
	"novo mesto": {}, "ptuj": {}, "velenje": {}, "murska sobota": {}, "nova gorica": {},
	"slovenj gradec": {}, "jesenice": {}, "trbovlje": {}, "kamnik": {}, "domzale": {},
	"slovenija": {}, "slovenia": {}, "prekmurje": {}, "stajerska": {}, "stajersko": {},
	"dolenjska": {}, "gorenjska": {}, "primorska": {}, "koroska": {}, "notranjska": {},
	"zagreb": {}, "hrvaska": {}, "croatia": {}, "vienna": {}, "dunaj": {}, "austria": {},
	"madrid": {}, "barcelona": {}, "sevilla": {}, "valencia": {}, "zaragoza": {},
	"murcia": {}, "almeria": {}, "andalucia": {}, "espana": {}, "spain": {},
	"london": {}, "paris": {}, "rome": {}, "berlin": {}, "europe": {},
}

// Verdict is the outcome of validating one candidate value.
type Verdict struct {
	Accepted bool
	Value    string
	Err      *ValidationError
	Warnings []string
}

func accept(value string, warnings ...string) Verdict {
	return Verdict{Accepted: true, Value: value, Warnings: warnings}
}

func reject(field domain.Field, code, reason string) Verdict {
	return Verdict{Err: &ValidationError{Field: field, Code: code, Reason: reason}}
}

// FieldValidator applies the per-field rules. It is pure: no I/O, no clock.
type FieldValidator struct {
	passwords port.PasswordPolicy
}

// NewFieldValidator constructs a validator. A nil policy uses the default password policy.
func NewFieldValidator(passwords port.PasswordPolicy) *FieldValidator {
	if passwords == nil {
		passwords = security.NewPasswordPolicy()
	}
	return &FieldValidator{passwords: passwords}
}

// Validate checks value against the rules for field. For the password field
// the already collected values are passed to the strength estimator.
func (v *FieldValidator) Validate(field domain.Field, value string, collected map[domain.Field]string) Verdict {
	switch field {
	case domain.FieldFirstName, domain.FieldLastName:
		return ValidateName(field, value)
	case domain.FieldPhoneNumber:
		return ValidatePhone(value)
	case domain.FieldPassword:
		return v.ValidatePassword(value, collected)
	default:
		return reject(field, CodeInvalidCharacters, "unknown field")
	}
}

// ValidateName accepts alphabetic names, normalizing whitespace and casing.
func ValidateName(field domain.Field, value string) Verdict {
	name := strings.Join(strings.Fields(norm.NFC.String(value)), " ")
	if name == "" {
		return reject(field, CodeEmpty, "name is empty")
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		return reject(field, CodeTooLong, "name is longer than 50 characters")
	}
	if phoneLikePattern.MatchString(name) {
		return reject(field, CodeLooksLikePhone, "value looks like a phone number, not a name")
	}
	letters := 0
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.Is(unicode.Mn, r), r == ' ', r == '-', r == '\'', r == '’', r == '.':
		default:
			return reject(field, CodeInvalidCharacters, "name may contain only letters, spaces, hyphens and apostrophes")
		}
	}
	if letters == 0 {
		return reject(field, CodeInvalidCharacters, "name has no letters")
	}
	if IsPlaceName(name) {
		return reject(field, CodePlaceName, "value is a place name, not a person's name")
	}
	return accept(titleCase(name))
}

// IsPlaceName reports whether value matches a known place.
func IsPlaceName(value string) bool {
	_, ok := placeNames[foldName(value)]
	return ok
}

// ValidatePhone accepts international numbers written with a leading +.
// Separators are removed; the stored form is + followed by digits only.
func ValidatePhone(value string) Verdict {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return reject(domain.FieldPhoneNumber, CodeEmpty, "phone number is empty")
	}
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case strings.ContainsRune(phoneSeparators, r):
		default:
			return reject(domain.FieldPhoneNumber, CodeInvalidCharacters, "phone number may contain only digits and a leading +")
		}
	}
	phone := b.String()
	if !strings.HasPrefix(phone, "+") {
		return reject(domain.FieldPhoneNumber, CodeMissingCountryCode, "phone number must start with + and the country code, e.g. +386")
	}
	if digits < minPhoneDigits {
		return reject(domain.FieldPhoneNumber, CodeTooShort, "phone number has too few digits")
	}
	if digits > maxPhoneDigits {
		return reject(domain.FieldPhoneNumber, CodeTooLong, "phone number has more than 15 digits")
	}
	return accept(phone)
}

// ValidatePassword enforces the hard length rule; weaker passwords are
// accepted with advisory warnings.
func (v *FieldValidator) ValidatePassword(value string, collected map[domain.Field]string) Verdict {
	inputs := make([]string, 0, 3)
	for _, f := range []domain.Field{domain.FieldFirstName, domain.FieldLastName, domain.FieldPhoneNumber} {
		if s := collected[f]; s != "" {
			inputs = append(inputs, s)
		}
	}
	warnings, err := v.passwords.Check(value, inputs)
	if err != nil {
		code := CodeMinLength
		var pErr *security.PasswordValidationError
		if errors.As(err, &pErr) && pErr.Code != "" {
			code = pErr.Code
		}
		return reject(domain.FieldPassword, code, err.Error())
	}
	return accept(value, warnings...)
}

func titleCase(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(s)
}

// foldName lower-cases s and strips combining marks so "Šentjur" and "sentjur" compare equal.
func foldName(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
