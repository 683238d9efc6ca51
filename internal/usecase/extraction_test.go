package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

var allNameFields = []domain.Field{domain.FieldFirstName, domain.FieldLastName, domain.FieldPhoneNumber, domain.FieldPassword}

func extractRules(t *testing.T, message string, missing []domain.Field) *domain.ExtractionResult {
	t.Helper()
	res, err := NewRuleExtractor().Extract(context.Background(), domain.ExtractionRequest{Message: message, Missing: missing})
	if err != nil {
		t.Fatalf("rule extraction returned error: %v", err)
	}
	return res
}

func TestRuleExtractorNames(t *testing.T) {
	cases := []struct {
		message string
		missing []domain.Field
		want    map[domain.Field]string
	}{
		{"Peter", allNameFields, map[domain.Field]string{domain.FieldFirstName: "Peter"}},
		{"Hi, I'm Peter Horvat", allNameFields, map[domain.Field]string{domain.FieldFirstName: "Peter", domain.FieldLastName: "Horvat"}},
		{"Me llamo José", allNameFields, map[domain.Field]string{domain.FieldFirstName: "José"}},
		{"Horvat", allNameFields[1:], map[domain.Field]string{domain.FieldLastName: "Horvat"}},
		{"Hello", allNameFields, map[domain.Field]string{}},
		{"I live near the river in a small village", allNameFields, map[domain.Field]string{}},
		{"Why do you need my name?", allNameFields, map[domain.Field]string{}},
	}
	for _, tc := range cases {
		res := extractRules(t, tc.message, tc.missing)
		if len(res.Updates) != len(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.message, tc.want, res.Updates)
		}
		for f, v := range tc.want {
			if res.Updates[f] != v {
				t.Fatalf("%q: expected %s=%q, got %q", tc.message, f, v, res.Updates[f])
			}
		}
		if res.Strategy != StrategyRules {
			t.Fatalf("expected rules strategy, got %s", res.Strategy)
		}
	}
}

func TestRuleExtractorPhones(t *testing.T) {
	res := extractRules(t, "Peter Horvat, +386 41 348 050", allNameFields)
	if res.Updates[domain.FieldPhoneNumber] != "+386 41 348 050" {
		t.Fatalf("expected phone extracted, got %q", res.Updates[domain.FieldPhoneNumber])
	}
	if res.Updates[domain.FieldFirstName] != "Peter" || res.Updates[domain.FieldLastName] != "Horvat" {
		t.Fatalf("expected names next to the phone, got %v", res.Updates)
	}

	bare := extractRules(t, "41348050", []domain.Field{domain.FieldPhoneNumber})
	if bare.Updates[domain.FieldPhoneNumber] != "41348050" {
		t.Fatalf("expected bare digits proposed for validation, got %v", bare.Updates)
	}

	short := extractRules(t, "I farm 120 hectares", []domain.Field{domain.FieldPhoneNumber})
	if _, ok := short.Updates[domain.FieldPhoneNumber]; ok {
		t.Fatalf("short numbers must not be read as phones")
	}

	notMissing := extractRules(t, "+38641348050", []domain.Field{domain.FieldPassword})
	if len(notMissing.Updates) != 0 {
		t.Fatalf("expected no updates for collected fields, got %v", notMissing.Updates)
	}
}

func TestRuleExtractorCancel(t *testing.T) {
	r := NewRuleExtractor()
	for _, msg := range []string{"cancel", "STOP!", "prekliči", "cancelar."} {
		if !r.IsCancel(msg) {
			t.Fatalf("expected %q to cancel", msg)
		}
	}
	for _, msg := range []string{"please don't stop", "Peter"} {
		if r.IsCancel(msg) {
			t.Fatalf("expected %q not to cancel", msg)
		}
	}
	if res := extractRules(t, "quit", allNameFields); !res.Abandon {
		t.Fatalf("expected abandon flag")
	}
}

func TestExtractionAdapterSanitizesModelOutput(t *testing.T) {
	model := &scriptedModel{result: func(domain.ExtractionRequest) *domain.ExtractionResult {
		return &domain.ExtractionResult{
			Updates: map[domain.Field]string{
				domain.FieldFirstName: "  Peter ",
				domain.FieldLastName:  "Horvat",
				domain.FieldPassword:  "hunter22",
				"favourite_crop":      "maize",
			},
			ReplyText: " Thanks! ",
		}
	}}
	adapter := NewExtractionAdapter(model, nil, time.Second, nil, nil)
	res := adapter.Extract(context.Background(), domain.ExtractionRequest{
		Message: "Peter",
		Missing: []domain.Field{domain.FieldFirstName, domain.FieldPhoneNumber, domain.FieldPassword},
	})
	if res.Strategy != StrategyModel {
		t.Fatalf("expected model strategy, got %s", res.Strategy)
	}
	if len(res.Updates) != 1 || res.Updates[domain.FieldFirstName] != "Peter" {
		t.Fatalf("expected only the missing first name kept, got %v", res.Updates)
	}
	if res.ReplyText != "Thanks!" {
		t.Fatalf("expected trimmed reply, got %q", res.ReplyText)
	}
	for _, f := range model.calls()[0].Missing {
		if f == domain.FieldPassword {
			t.Fatalf("password must not be offered to the model")
		}
	}
}

func TestExtractionAdapterFallsBack(t *testing.T) {
	cases := map[string]*scriptedModel{
		"error":   {err: errors.New("quota exceeded")},
		"timeout": {delay: time.Second},
		"nil":     {result: func(domain.ExtractionRequest) *domain.ExtractionResult { return nil }},
	}
	for name, model := range cases {
		adapter := NewExtractionAdapter(model, nil, 20*time.Millisecond, nil, nil)
		res := adapter.Extract(context.Background(), domain.ExtractionRequest{Message: "Peter", Missing: allNameFields})
		if res.Strategy != StrategyRules {
			t.Fatalf("%s: expected rules fallback, got %s", name, res.Strategy)
		}
		if res.Updates[domain.FieldFirstName] != "Peter" {
			t.Fatalf("%s: expected rules to extract the name, got %v", name, res.Updates)
		}
	}
}

func TestExtractionAdapterWithoutModelUsesRules(t *testing.T) {
	adapter := NewExtractionAdapter(nil, nil, 0, nil, nil)
	res := adapter.Extract(context.Background(), domain.ExtractionRequest{Message: "Ana", Missing: allNameFields})
	if res.Strategy != StrategyRules || res.Updates[domain.FieldFirstName] != "Ana" {
		t.Fatalf("unexpected result %+v", res)
	}
}
