package i18n

import "testing"

func TestTranslate(t *testing.T) {
	tr := NewTranslator("en")

	if got := tr.T("", "scan_marked", map[string]any{"EventTitle": "Tech Fest"}); got != "Attendance marked for Tech Fest" {
		t.Fatalf("unexpected english message: %q", got)
	}
	if got := tr.T("fr-FR,fr;q=0.9,en;q=0.8", "scan_busy", nil); got != "Un scan est déjà en cours. Veuillez patienter." {
		t.Fatalf("unexpected french message: %q", got)
	}
	if got := tr.T("de", "scan_not_approved", nil); got != "This registration has not been approved" {
		t.Fatalf("expected default locale fallback, got %q", got)
	}
	if got := tr.T("en", "no_such_key", nil); got != "no_such_key" {
		t.Fatalf("unknown key should come back unchanged, got %q", got)
	}
}

func TestDefaultLocale(t *testing.T) {
	tr := NewTranslator("fr")
	if got := tr.T("", "history_cleared", nil); got != "Historique des scans effacé" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := NewTranslator("???").T("", "history_cleared", nil); got != "Scan history cleared" {
		t.Fatalf("bad locale should fall back to english, got %q", got)
	}
}

func TestForNegotiatesLanguage(t *testing.T) {
	tr := NewTranslator("en")

	cases := map[string]string{
		"":                        "en",
		"fr-CA,fr;q=0.9":          "fr",
		"de-DE,fr;q=0.5":          "fr",
		"de":                      "en",
		"not a header;;":          "en",
		"en-GB,en;q=0.9,fr;q=0.8": "en",
	}
	for header, want := range cases {
		if got := tr.For(header).Language(); got != want {
			t.Errorf("%q: expected %s, got %s", header, want, got)
		}
	}

	loc := tr.For("fr")
	if got := loc.T("reset_done", nil); got != tr.T("fr", "reset_done", nil) {
		t.Fatalf("localizer and translator disagree: %q", got)
	}
	if got := loc.T("", nil); got != "" {
		t.Fatalf("empty key should render empty, got %q", got)
	}
}
