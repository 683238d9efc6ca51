package usecase

import (
	"strings"
	"testing"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

func TestValidateNameAcceptsAndNormalizes(t *testing.T) {
	cases := map[string]string{
		"peter":           "Peter",
		"  ana   marija ": "Ana Marija",
		"šime":            "Šime",
		"José":            "José",
	}
	for in, want := range cases {
		verdict := ValidateName(domain.FieldFirstName, in)
		if !verdict.Accepted {
			t.Fatalf("expected %q accepted, got %+v", in, verdict.Err)
		}
		if verdict.Value != want {
			t.Fatalf("expected %q normalized to %q, got %q", in, want, verdict.Value)
		}
	}
}

func TestValidateNameRejections(t *testing.T) {
	cases := []struct {
		in   string
		code string
	}{
		{"", CodeEmpty},
		{"   ", CodeEmpty},
		{"+386 41 348 050", CodeLooksLikePhone},
		{"41348050", CodeLooksLikePhone},
		{"Peter2", CodeInvalidCharacters},
		{"!!!", CodeInvalidCharacters},
		{"Ljubljana", CodePlaceName},
		{"murska sobota", CodePlaceName},
		{"España", CodePlaceName},
		{strings.Repeat("a", 51), CodeTooLong},
	}
	for _, tc := range cases {
		verdict := ValidateName(domain.FieldLastName, tc.in)
		if verdict.Accepted {
			t.Fatalf("expected %q rejected", tc.in)
		}
		if verdict.Err.Code != tc.code {
			t.Fatalf("expected code %s for %q, got %s", tc.code, tc.in, verdict.Err.Code)
		}
		if verdict.Err.Field != domain.FieldLastName {
			t.Fatalf("expected field last_name, got %s", verdict.Err.Field)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	accepted := map[string]string{
		"+38641348050":       "+38641348050",
		"+386 41 348 050":    "+38641348050",
		"+34 (612) 345-678":  "+34612345678",
		"+1.415.555.0100":    "+14155550100",
		" +44 20 7946 0958 ": "+442079460958",
	}
	for in, want := range accepted {
		verdict := ValidatePhone(in)
		if !verdict.Accepted {
			t.Fatalf("expected %q accepted, got %+v", in, verdict.Err)
		}
		if verdict.Value != want {
			t.Fatalf("expected %q, got %q", want, verdict.Value)
		}
	}

	rejected := []struct {
		in   string
		code string
	}{
		{"41348050", CodeMissingCountryCode},
		{"0038641348050", CodeMissingCountryCode},
		{"+3864", CodeTooShort},
		{"+1234567890123456", CodeTooLong},
		{"+386 41 abc", CodeInvalidCharacters},
		{"386+41348050", CodeInvalidCharacters},
		{"", CodeEmpty},
	}
	for _, tc := range rejected {
		verdict := ValidatePhone(tc.in)
		if verdict.Accepted {
			t.Fatalf("expected %q rejected", tc.in)
		}
		if verdict.Err.Code != tc.code {
			t.Fatalf("expected code %s for %q, got %s", tc.code, tc.in, verdict.Err.Code)
		}
	}
}

func TestMissingCountryCodeReasonNamesCountryCode(t *testing.T) {
	verdict := ValidatePhone("41348050")
	if verdict.Accepted || !strings.Contains(verdict.Err.Reason, "country code") {
		t.Fatalf("expected reason naming the country code, got %+v", verdict.Err)
	}
}

func TestValidatePassword(t *testing.T) {
	v := NewFieldValidator(nil)

	short := v.Validate(domain.FieldPassword, "abc12", nil)
	if short.Accepted || short.Err.Code != CodeMinLength {
		t.Fatalf("expected min_length rejection, got %+v", short)
	}

	weak := v.Validate(domain.FieldPassword, "secret123", map[domain.Field]string{domain.FieldFirstName: "Peter"})
	if !weak.Accepted {
		t.Fatalf("expected weak password accepted with warnings, got %+v", weak.Err)
	}
	if weak.Value != "secret123" {
		t.Fatalf("expected value preserved, got %q", weak.Value)
	}

	noDigit := v.Validate(domain.FieldPassword, "onlyletters", nil)
	if !noDigit.Accepted {
		t.Fatalf("expected accepted, got %+v", noDigit.Err)
	}
	found := false
	for _, w := range noDigit.Warnings {
		if w == "digit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected digit warning, got %v", noDigit.Warnings)
	}
}

func TestIsPlaceNameIgnoresCaseAndDiacritics(t *testing.T) {
	for _, in := range []string{"LJUBLJANA", "Štajerska", "andalucía", " Novo  Mesto "} {
		if !IsPlaceName(in) {
			t.Fatalf("expected %q recognized as a place", in)
		}
	}
	if IsPlaceName("Horvat") {
		t.Fatalf("surname should not be a place")
	}
}
