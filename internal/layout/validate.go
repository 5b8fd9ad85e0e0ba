package layout

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// layoutEnvelopeSchema checks only the document envelope: the entry-level
// salvage below is deliberately more forgiving than a schema can express.
const layoutEnvelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["widgets"],
	"properties": {
		"widgets": { "type": "array" }
	}
}`

var envelopeSchema = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(layoutEnvelopeSchema))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("layout-envelope.json", doc); err != nil {
		panic(err)
	}
	return compiler.MustCompile("layout-envelope.json")
}

// Validator turns untrusted raw layout documents into a canonical widget
// list. Remote documents may be hand-edited, partially written, or from an
// older schema; the validator never fails, it degrades to the default
// catalog instead.
type Validator struct {
	logger Logger
}

func NewValidator(logger Logger) *Validator {
	return &Validator{logger: orNopLogger(logger)}
}

// Validate sanitizes a decoded JSON document. Accepted entries keep their
// incoming order values even when non-contiguous; renumbering happens on the
// next reorder or save, not here.
func (v *Validator) Validate(raw any) []Widget {
	if raw == nil {
		return DefaultWidgets()
	}
	if err := envelopeSchema.Validate(raw); err != nil {
		v.logger.Printf("layout document failed envelope check, using defaults: %v", err)
		return DefaultWidgets()
	}

	doc := raw.(map[string]any)
	entries := doc["widgets"].([]any)
	seen := make(map[string]struct{}, len(entries))
	accepted := make([]Widget, 0, len(entries))
	for i, entry := range entries {
		widget, reason := sanitizeEntry(entry)
		if reason != "" {
			v.logger.Printf("dropping layout entry %d: %s", i, reason)
			continue
		}
		if _, dup := seen[widget.ID]; dup {
			v.logger.Printf("dropping layout entry %d: duplicate id %q", i, widget.ID)
			continue
		}
		seen[widget.ID] = struct{}{}
		accepted = append(accepted, widget)
	}
	if len(accepted) == 0 {
		v.logger.Printf("layout document contained no valid widgets, using defaults")
		return DefaultWidgets()
	}
	return accepted
}

// ValidateJSON decodes and sanitizes a raw payload. Undecodable payloads
// resolve to the default catalog like any other malformed document.
func (v *Validator) ValidateJSON(data []byte) []Widget {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		v.logger.Printf("layout document is not valid JSON, using defaults: %v", err)
		return DefaultWidgets()
	}
	return v.Validate(raw)
}

func sanitizeEntry(entry any) (Widget, string) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return Widget{}, "not an object"
	}
	id, ok := obj["id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return Widget{}, "missing id"
	}
	kind, ok := obj["kind"].(string)
	if !ok || strings.TrimSpace(kind) == "" {
		return Widget{}, "missing kind"
	}
	visible, ok := obj["isVisible"].(bool)
	if !ok {
		return Widget{}, "isVisible is not a boolean"
	}
	order, ok := obj["order"].(float64)
	if !ok || math.IsNaN(order) || math.IsInf(order, 0) {
		return Widget{}, "order is not a finite number"
	}

	name, _ := obj["name"].(string)
	description, _ := obj["description"].(string)
	return Widget{
		ID:          id,
		Name:        name,
		Kind:        kind,
		IsVisible:   visible,
		Order:       int(order),
		Description: description,
	}, ""
}
