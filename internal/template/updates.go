package template

import (
	"encoding/json"

	"github.com/personaforge/personaforge/internal/models"
)

// FieldUpdates is a partial update: nil means "leave unchanged". The
// three list fields fully replace the stored list when present; there
// is no element-level merge.
type FieldUpdates struct {
	Name            *string           `json:"name,omitempty"`
	Bio             *string           `json:"bio,omitempty"`
	VoiceStyle      *string           `json:"voice_style,omitempty"`
	Persona         map[string]string `json:"persona,omitempty"`
	Rules           []string          `json:"rules,omitempty"`
	Instructions    []string          `json:"instructions,omitempty"`
	ExampleDialogue []string          `json:"example_dialogue,omitempty"`
}

// UpdatesFromJSON decodes a request body into FieldUpdates with the
// same per-field tolerance as the normalizer, so a persona sent as a
// JSON-encoded string or a rule sent as a bare string still lands.
func UpdatesFromJSON(data []byte) (FieldUpdates, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return FieldUpdates{}, ErrUnparseable
	}

	u := coerceFields(obj)
	if raw, ok := obj["name"]; ok {
		if s, ok := asString(raw); ok && s != "" {
			u.Name = &s
		}
	}
	return u, nil
}

// IsZero reports whether the update would change nothing.
func (u FieldUpdates) IsZero() bool {
	return u.Name == nil && u.Bio == nil && u.VoiceStyle == nil &&
		u.Persona == nil && u.Rules == nil && u.Instructions == nil &&
		u.ExampleDialogue == nil
}

// Apply writes the present fields onto t. When mergePersona is set,
// persona keys are merged into the existing mapping (the edit path);
// otherwise a present persona replaces it wholesale (the optimize
// path). Applied values are cloned so the caller's update cannot be
// mutated through the record later.
func (u FieldUpdates) Apply(t *models.Template, mergePersona bool) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Bio != nil {
		t.Bio = *u.Bio
	}
	if u.VoiceStyle != nil {
		t.VoiceStyle = *u.VoiceStyle
	}
	if u.Persona != nil {
		if mergePersona && t.Persona != nil {
			merged := clonePersona(t.Persona)
			for k, v := range u.Persona {
				merged[k] = v
			}
			t.Persona = merged
		} else {
			t.Persona = clonePersona(u.Persona)
		}
	}
	if u.Rules != nil {
		t.Rules = cloneStrings(u.Rules)
	}
	if u.Instructions != nil {
		t.Instructions = cloneStrings(u.Instructions)
	}
	if u.ExampleDialogue != nil {
		t.ExampleDialogue = cloneStrings(u.ExampleDialogue)
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clonePersona(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
