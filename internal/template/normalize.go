package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable means no JSON object could be recovered from the
// model response, neither by direct parsing nor by scanning the
// outermost brace span.
var ErrUnparseable = errors.New("no JSON object found in response")

// MissingFieldsError is returned by NormalizeComplete when the
// response parsed but lacks required template fields.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Normalize extracts template field updates from free-form model
// output. Parsing is a fixed two-step procedure: try the whole text
// as a JSON object, then the span from the first '{' to the last '}'.
// Text that parses as JSON but not as an object is rejected without
// the second step.
// Only recognized fields are kept; unrecognized keys are ignored.
// Values are coerced per field (see the coerce* helpers); values that
// cannot be coerced drop the field rather than failing. Pure, no side
// effects.
func Normalize(raw string) (FieldUpdates, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return FieldUpdates{}, err
	}
	return coerceFields(obj), nil
}

// NormalizeComplete is Normalize with every template field mandatory.
// Used by the generation path, where a partial persona is useless.
func NormalizeComplete(raw string) (FieldUpdates, error) {
	u, err := Normalize(raw)
	if err != nil {
		return FieldUpdates{}, err
	}

	var missing []string
	if u.Bio == nil {
		missing = append(missing, "bio")
	}
	if u.VoiceStyle == nil {
		missing = append(missing, "voice_style")
	}
	if u.Persona == nil {
		missing = append(missing, "persona")
	}
	if u.Rules == nil {
		missing = append(missing, "rules")
	}
	if u.Instructions == nil {
		missing = append(missing, "instructions")
	}
	if u.ExampleDialogue == nil {
		missing = append(missing, "example_dialogue")
	}
	if len(missing) > 0 {
		return FieldUpdates{}, &MissingFieldsError{Fields: missing}
	}
	return u, nil
}

func extractObject(raw string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj, nil
	}

	// Input that parses as JSON but is not an object (an array, a bare
	// string, null) is rejected outright. The brace scan only recovers
	// objects embedded in surrounding prose.
	if json.Valid([]byte(raw)) {
		return nil, ErrUnparseable
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		obj = nil
		if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err == nil && obj != nil {
			return obj, nil
		}
	}

	return nil, ErrUnparseable
}

func coerceFields(obj map[string]json.RawMessage) FieldUpdates {
	var u FieldUpdates

	if raw, ok := obj["bio"]; ok {
		if s, ok := asString(raw); ok {
			u.Bio = &s
		}
	}
	if raw, ok := obj["voice_style"]; ok {
		if s, ok := asString(raw); ok {
			u.VoiceStyle = &s
		}
	}
	if raw, ok := obj["persona"]; ok {
		u.Persona = coercePersona(raw)
	}
	if raw, ok := obj["rules"]; ok {
		u.Rules = coerceStringList(raw)
	}
	if raw, ok := obj["instructions"]; ok {
		u.Instructions = coerceStringList(raw)
	}
	if raw, ok := obj["example_dialogue"]; ok {
		u.ExampleDialogue = coerceDialogue(raw)
	}

	return u
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// coerceStringList accepts a JSON array or a bare string (wrapped
// into a one-element list). Non-string array elements keep their
// compact JSON text.
func coerceStringList(raw json.RawMessage) []string {
	if s, ok := asString(raw); ok {
		return []string{s}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		return nil
	}

	out := make([]string, 0, len(elems))
	for _, el := range elems {
		if s, ok := asString(el); ok {
			out = append(out, s)
		} else {
			out = append(out, string(bytes.TrimSpace(el)))
		}
	}
	return out
}

// coerceDialogue accepts a list of lines, a speaker→utterance object
// (flattened to "speaker: utterance" in document order), or a single
// string split on line breaks.
func coerceDialogue(raw json.RawMessage) []string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '{':
		return dialogueFromObject(trimmed)
	case '"':
		s, ok := asString(trimmed)
		if !ok {
			return nil
		}
		var lines []string
		for _, line := range strings.Split(s, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		return lines
	case '[':
		return coerceStringList(trimmed)
	}
	return nil
}

// dialogueFromObject walks the object with a token decoder so that
// key order follows the document, not Go map iteration.
func dialogueFromObject(raw []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil
	}

	var lines []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		speaker, ok := keyTok.(string)
		if !ok {
			return nil
		}

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil
		}
		if s, ok := asString(val); ok {
			lines = append(lines, speaker+": "+s)
		} else {
			lines = append(lines, speaker+": "+string(bytes.TrimSpace(val)))
		}
	}
	return lines
}

// coercePersona accepts an object of attributes, or a string that is
// itself JSON; a plain string becomes {"description": s}.
func coercePersona(raw json.RawMessage) map[string]string {
	if m := personaFromObject(raw); m != nil {
		return m
	}

	s, ok := asString(raw)
	if !ok {
		return nil
	}
	if m := personaFromObject([]byte(s)); m != nil {
		return m
	}
	return map[string]string{"description": s}
}

func personaFromObject(raw []byte) map[string]string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}

	m := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := asString(v); ok {
			m[k] = s
		} else {
			m[k] = string(bytes.TrimSpace(v))
		}
	}
	return m
}
