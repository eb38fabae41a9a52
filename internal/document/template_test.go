package document

import "testing"

func TestTemplateComposeDecomposeRoundTrip(t *testing.T) {
	variants := []Density{DensityCompact, DensityNormal, DensityLarge}
	for _, base := range knownBases {
		for _, v := range variants {
			id := ComposeTemplate(base, v)
			if got := BaseTemplate(id); got != base {
				t.Fatalf("BaseTemplate(%q): got %q want %q", id, got, base)
			}
			if got := TemplateVariant(id); got != v {
				t.Fatalf("TemplateVariant(%q): got %q want %q", id, got, v)
			}
			if got := ComposeTemplate(BaseTemplate(id), TemplateVariant(id)); got != id {
				t.Fatalf("recompose(%q): got %q", id, got)
			}
		}
	}
}

func TestComposeTemplateNeverStacksSuffixes(t *testing.T) {
	got := ComposeTemplate(ComposeTemplate("harvard", DensityCompact), DensityLarge)
	if got != "harvard_large" {
		t.Fatalf("got %q want %q", got, "harvard_large")
	}

	if got := ComposeTemplate("europass_large", DensityCompact); got != "europass_compact" {
		t.Fatalf("got %q want %q", got, "europass_compact")
	}
}

func TestComposeTemplateNormalIsBare(t *testing.T) {
	if got := ComposeTemplate("mckinsey_compact", DensityNormal); got != "mckinsey" {
		t.Fatalf("got %q want %q", got, "mckinsey")
	}
	if got := ComposeTemplate("mckinsey", DensityNormal); got != "mckinsey" {
		t.Fatalf("got %q want %q", got, "mckinsey")
	}
}

func TestDecomposeUnknownBasePassesThrough(t *testing.T) {
	if got := BaseTemplate("bespoke"); got != "bespoke" {
		t.Fatalf("got %q want %q", got, "bespoke")
	}
	if got := TemplateVariant("bespoke"); got != DensityNormal {
		t.Fatalf("got %q want %q", got, DensityNormal)
	}
	if got := ComposeTemplate("bespoke", DensityLarge); got != "bespoke_large" {
		t.Fatalf("got %q want %q", got, "bespoke_large")
	}
}

func TestKnownTemplateID(t *testing.T) {
	for _, id := range []string{"harvard", "harvard_compact", "double_large"} {
		if !KnownTemplateID(id) {
			t.Fatalf("expected %q to be known", id)
		}
	}
	if KnownTemplateID("bespoke_compact") {
		t.Fatal("expected bespoke_compact to be unknown")
	}
}
