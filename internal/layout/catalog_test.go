package layout

import "testing"

func TestDefaultWidgets(t *testing.T) {
	defaults := DefaultWidgets()
	if len(defaults) != 8 {
		t.Fatalf("expected 8 default widgets, got %d", len(defaults))
	}
	seen := map[string]bool{}
	for i, w := range defaults {
		if w.Order != i {
			t.Fatalf("widget %s: expected order %d, got %d", w.ID, i, w.Order)
		}
		if !w.IsVisible {
			t.Fatalf("widget %s: defaults must be visible", w.ID)
		}
		if w.ID == "" || w.Kind == "" {
			t.Fatalf("widget %d: missing id or kind", i)
		}
		if seen[w.ID] {
			t.Fatalf("duplicate default id %s", w.ID)
		}
		seen[w.ID] = true
	}
	if !seen["thin_banner"] {
		t.Fatalf("expected thin_banner in default catalog")
	}
}

func TestDefaultWidgetsReturnsFreshCopies(t *testing.T) {
	first := DefaultWidgets()
	first[0].IsVisible = false
	first[0].Order = 99

	second := DefaultWidgets()
	if !second[0].IsVisible || second[0].Order != 0 {
		t.Fatalf("mutating one default list affected another: %+v", second[0])
	}
}

func TestKindSpecLookup(t *testing.T) {
	spec, ok := KindSpecFor(KindThinBanner)
	if !ok {
		t.Fatalf("expected spec for %s", KindThinBanner)
	}
	if spec.DefaultID != "thin_banner" {
		t.Fatalf("unexpected default id %s", spec.DefaultID)
	}
	if _, ok := KindSpecFor("no-such-kind"); ok {
		t.Fatalf("expected no spec for unknown kind")
	}
}

func TestKindsRegistrationOrder(t *testing.T) {
	kinds := Kinds()
	if len(kinds) != 8 {
		t.Fatalf("expected 8 registered kinds, got %d", len(kinds))
	}
	if kinds[0] != KindBanner || kinds[2] != KindThinBanner {
		t.Fatalf("unexpected registration order: %v", kinds)
	}
	defaults := DefaultWidgets()
	for i, kind := range kinds {
		if defaults[i].Kind != kind {
			t.Fatalf("default order %d: expected kind %s, got %s", i, kind, defaults[i].Kind)
		}
	}
}

func TestDisplayForFallsBackOnUnknownKind(t *testing.T) {
	info := DisplayFor(Widget{ID: "mystery", Kind: "unknown-kind"})
	if info.Label != "mystery" || info.Icon != "widget" {
		t.Fatalf("unexpected fallback display %+v", info)
	}

	info = DisplayFor(Widget{ID: "thin_banner", Name: "Thin banner", Kind: KindThinBanner})
	if info.Label != "Thin banner" {
		t.Fatalf("unexpected display label %s", info.Label)
	}
}
