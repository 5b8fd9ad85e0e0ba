package layout

import (
	"encoding/json"
	"testing"
)

func decodeRaw(t *testing.T, payload string) any {
	t.Helper()
	var raw any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("decode test payload: %v", err)
	}
	return raw
}

func TestValidateFallsBackOnGarbage(t *testing.T) {
	validator := NewValidator(nil)
	cases := []struct {
		name    string
		payload string
	}{
		{"unexpected shape", `{"unexpected": true}`},
		{"widgets not an array", `{"widgets": "not-an-array"}`},
		{"top-level array", `[1, 2, 3]`},
		{"top-level string", `"widgets"`},
		{"null", `null`},
		{"empty widgets", `{"widgets": []}`},
		{"all entries invalid", `{"widgets": [{"id": ""}, {"kind": "banner"}, 42]}`},
	}
	want := len(DefaultWidgets())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := validator.Validate(decodeRaw(t, tc.payload))
			if len(got) != want {
				t.Fatalf("expected %d default widgets, got %d", want, len(got))
			}
		})
	}
}

func TestValidateAcceptsWellFormedEntries(t *testing.T) {
	validator := NewValidator(nil)
	raw := decodeRaw(t, `{
		"widgets": [
			{"id": "banner", "name": "Hero", "kind": "banner", "isVisible": true, "order": 0, "description": "top"},
			{"id": "shop_row", "name": "Shops", "kind": "shop-row", "isVisible": false, "order": 1, "description": ""}
		],
		"updatedBy": "op_1",
		"version": 123
	}`)

	got := validator.Validate(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(got))
	}
	if got[0].ID != "banner" || got[0].Name != "Hero" || !got[0].IsVisible {
		t.Fatalf("unexpected first widget %+v", got[0])
	}
	if got[1].ID != "shop_row" || got[1].IsVisible {
		t.Fatalf("unexpected second widget %+v", got[1])
	}
}

func TestValidateSkipsMalformedEntries(t *testing.T) {
	validator := NewValidator(nil)
	raw := decodeRaw(t, `{
		"widgets": [
			{"id": "good", "kind": "banner", "isVisible": true, "order": 0},
			{"id": 7, "kind": "banner", "isVisible": true, "order": 1},
			{"id": "no_kind", "kind": "", "isVisible": true, "order": 2},
			{"id": "bad_visible", "kind": "banner", "isVisible": "yes", "order": 3},
			{"id": "bad_order", "kind": "banner", "isVisible": true, "order": "first"},
			"not-an-object"
		]
	}`)

	got := validator.Validate(raw)
	if len(got) != 1 || got[0].ID != "good" {
		t.Fatalf("expected only the well-formed entry, got %+v", got)
	}
}

func TestValidateDropsDuplicateIDs(t *testing.T) {
	validator := NewValidator(nil)
	raw := decodeRaw(t, `{
		"widgets": [
			{"id": "x", "name": "first", "kind": "banner", "isVisible": true, "order": 0},
			{"id": "x", "name": "second", "kind": "banner", "isVisible": false, "order": 1}
		]
	}`)

	got := validator.Validate(raw)
	if len(got) != 1 {
		t.Fatalf("expected dedup to one widget, got %d", len(got))
	}
	if got[0].Name != "first" || !got[0].IsVisible {
		t.Fatalf("expected first occurrence to win, got %+v", got[0])
	}
}

func TestValidateKeepsNonContiguousOrders(t *testing.T) {
	validator := NewValidator(nil)
	raw := decodeRaw(t, `{
		"widgets": [
			{"id": "a", "kind": "banner", "isVisible": true, "order": 40},
			{"id": "b", "kind": "banner", "isVisible": true, "order": 7}
		]
	}`)

	got := validator.Validate(raw)
	if got[0].Order != 40 || got[1].Order != 7 {
		t.Fatalf("validator must not renumber orders, got %+v", got)
	}
}

func TestValidateUniqueIDsProperty(t *testing.T) {
	validator := NewValidator(nil)
	raw := decodeRaw(t, `{
		"widgets": [
			{"id": "a", "kind": "banner", "isVisible": true, "order": 0},
			{"id": "b", "kind": "banner", "isVisible": true, "order": 1},
			{"id": "a", "kind": "banner", "isVisible": true, "order": 2},
			{"id": "c", "kind": "banner", "isVisible": true, "order": 3},
			{"id": "b", "kind": "banner", "isVisible": true, "order": 4}
		]
	}`)

	got := validator.Validate(raw)
	seen := map[string]bool{}
	for _, w := range got {
		if seen[w.ID] {
			t.Fatalf("duplicate id %s survived validation", w.ID)
		}
		seen[w.ID] = true
	}
}

func TestValidateJSONHandlesUndecodablePayload(t *testing.T) {
	validator := NewValidator(nil)
	got := validator.ValidateJSON([]byte("{truncated"))
	if len(got) != len(DefaultWidgets()) {
		t.Fatalf("expected defaults for undecodable payload, got %d widgets", len(got))
	}
}
