package usecase

import "testing"

func newTestDetector(t *testing.T) *LanguageDetector {
	t.Helper()
	d, err := NewLanguageDetector([]string{"en", "sl", "es"}, "en")
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	return d
}

func TestDetectByStopwordsAndLetters(t *testing.T) {
	d := newTestDetector(t)
	cases := map[string]string{
		"Hello, my name is Peter":         "en",
		"Živjo, ime mi je Peter":          "sl",
		"Moj priimek je Horvat":           "sl",
		"Hola, me llamo José":             "es",
		"¿Por qué necesitan mi teléfono?": "es",
	}
	for text, want := range cases {
		if got := d.Detect(text); got != want {
			t.Fatalf("Detect(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestDetectWithoutSignalKeepsPrevious(t *testing.T) {
	d := newTestDetector(t)
	if got := d.DetectWithHint("Peter", "", "sl"); got != "sl" {
		t.Fatalf("expected previous locale kept, got %s", got)
	}
	if got := d.DetectWithHint("+38641348050", "", ""); got != "en" {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestDetectUsesAcceptLanguageHint(t *testing.T) {
	d := newTestDetector(t)
	if got := d.DetectWithHint("Peter", "es-ES,es;q=0.9,en;q=0.5", ""); got != "es" {
		t.Fatalf("expected hint to select es, got %s", got)
	}
	if got := d.DetectWithHint("Peter", "sl-SI", ""); got != "sl" {
		t.Fatalf("expected hint to select sl, got %s", got)
	}
	if got := d.DetectWithHint("Peter", "not a header;;", ""); got != "en" {
		t.Fatalf("expected fallback for malformed hint, got %s", got)
	}
}

func TestDetectIgnoresUnsupportedProfiles(t *testing.T) {
	d, err := NewLanguageDetector([]string{"en", "sl"}, "en")
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if got := d.Detect("Hola, me llamo José"); got == "es" {
		t.Fatalf("unsupported locale must never be returned")
	}
}

func TestNewLanguageDetectorRejectsUnsupportedFallback(t *testing.T) {
	if _, err := NewLanguageDetector([]string{"en"}, "sl"); err == nil {
		t.Fatalf("expected error for fallback outside supported set")
	}
	if _, err := NewLanguageDetector(nil, "en"); err == nil {
		t.Fatalf("expected error for empty supported set")
	}
}
