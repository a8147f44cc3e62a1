package i18n

import "testing"

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"ID":    Indonesian,
		"id-ID": Indonesian,
		"en":    English,
		"en-AU": English,
		"fr":    English,
		"":      English,
		"!!":    English,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchAcceptLanguage(t *testing.T) {
	tests := map[string]string{
		"id-ID,en;q=0.8":    Indonesian,
		"en-US,en;q=0.9":    English,
		"fr;q=0.9,id;q=0.5": Indonesian,
		"":                  "",
	}
	for in, want := range tests {
		if got := MatchAcceptLanguage(in); got != want {
			t.Fatalf("MatchAcceptLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocalize(t *testing.T) {
	if got := Localize("id", "Cancelled by user"); got != "Dibatalkan oleh pengguna" {
		t.Fatalf("Localize id = %q", got)
	}
	if got := Localize("en", "Cancelled by user"); got != "Cancelled by user" {
		t.Fatalf("Localize en = %q", got)
	}
	if got := Localize("id", "provider exploded"); got != "provider exploded" {
		t.Fatalf("Localize passthrough = %q", got)
	}
	if got := Translate("id", "unknown.key"); got != "unknown.key" {
		t.Fatalf("Translate unknown = %q", got)
	}
}
