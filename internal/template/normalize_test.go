package template

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeDirectJSON(t *testing.T) {
	raw := `{"bio": "A helpful agent", "rules": ["be polite", "be brief"]}`

	u, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if u.Bio == nil || *u.Bio != "A helpful agent" {
		t.Fatalf("bio = %v, want %q", u.Bio, "A helpful agent")
	}
	if !reflect.DeepEqual(u.Rules, []string{"be polite", "be brief"}) {
		t.Fatalf("rules = %v", u.Rules)
	}
	if u.Persona != nil || u.Instructions != nil {
		t.Fatalf("absent fields should stay nil, got persona=%v instructions=%v", u.Persona, u.Instructions)
	}
}

func TestNormalizeEmbeddedInProse(t *testing.T) {
	raw := "Sure! Here is the updated template:\n\n" +
		`{"voice_style": "warm and direct"}` +
		"\n\nLet me know if you need anything else."

	u, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if u.VoiceStyle == nil || *u.VoiceStyle != "warm and direct" {
		t.Fatalf("voice_style = %v", u.VoiceStyle)
	}
}

func TestNormalizeUnparseable(t *testing.T) {
	for _, raw := range []string{
		"I could not produce a template for that request.",
		"",
		"{broken json",
		"[1, 2, 3]",
	} {
		if _, err := Normalize(raw); !errors.Is(err, ErrUnparseable) {
			t.Errorf("Normalize(%q) err = %v, want ErrUnparseable", raw, err)
		}
	}
}

func TestNormalizeRejectsNonObjectJSON(t *testing.T) {
	// Valid JSON that is not an object is terminal: the brace scan
	// must not dig an object out of a well-formed array or string.
	for _, raw := range []string{
		`[{"bio": "x"}]`,
		`"just a string with {braces}"`,
		`null`,
		`true`,
	} {
		if _, err := Normalize(raw); !errors.Is(err, ErrUnparseable) {
			t.Errorf("Normalize(%q) err = %v, want ErrUnparseable", raw, err)
		}
	}
}

func TestNormalizeIgnoresUnknownKeys(t *testing.T) {
	u, err := Normalize(`{"bio": "x", "mood": "cheerful", "explanation": "I updated the bio"}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if u.Bio == nil || *u.Bio != "x" {
		t.Fatalf("bio = %v", u.Bio)
	}
	if !reflect.DeepEqual(u, FieldUpdates{Bio: u.Bio}) {
		t.Fatalf("unknown keys leaked into updates: %+v", u)
	}
}

func TestNormalizeStringAsList(t *testing.T) {
	u, err := Normalize(`{"rules": "always greet the customer"}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !reflect.DeepEqual(u.Rules, []string{"always greet the customer"}) {
		t.Fatalf("rules = %v", u.Rules)
	}
}

func TestNormalizeDialogueObjectKeepsOrder(t *testing.T) {
	raw := `{"example_dialogue": {"Agent": "Hi", "Customer": "Hello", "Agent2": "How can I help?"}}`

	u, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"Agent: Hi", "Customer: Hello", "Agent2: How can I help?"}
	if !reflect.DeepEqual(u.ExampleDialogue, want) {
		t.Fatalf("example_dialogue = %v, want %v", u.ExampleDialogue, want)
	}
}

func TestNormalizeDialogueStringSplitsLines(t *testing.T) {
	raw := `{"example_dialogue": "Agent: Hi\n\nCustomer: Hello\n"}`

	u, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"Agent: Hi", "Customer: Hello"}
	if !reflect.DeepEqual(u.ExampleDialogue, want) {
		t.Fatalf("example_dialogue = %v, want %v", u.ExampleDialogue, want)
	}
}

func TestNormalizePersonaVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "object",
			raw:  `{"persona": {"age": "30", "occupation": "barista"}}`,
			want: map[string]string{"age": "30", "occupation": "barista"},
		},
		{
			name: "json string",
			raw:  `{"persona": "{\"age\": \"30\"}"}`,
			want: map[string]string{"age": "30"},
		},
		{
			name: "plain string",
			raw:  `{"persona": "a friendly barista"}`,
			want: map[string]string{"description": "a friendly barista"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if !reflect.DeepEqual(u.Persona, tt.want) {
				t.Fatalf("persona = %v, want %v", u.Persona, tt.want)
			}
		})
	}
}

func TestNormalizePersonaNonStringValues(t *testing.T) {
	u, err := Normalize(`{"persona": {"age": 30, "traits": ["kind", "patient"]}}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if u.Persona["age"] != "30" {
		t.Fatalf("age = %q, want JSON text %q", u.Persona["age"], "30")
	}
	if u.Persona["traits"] != `["kind", "patient"]` {
		t.Fatalf("traits = %q", u.Persona["traits"])
	}
}

func TestNormalizeUncoercibleValueDropsField(t *testing.T) {
	u, err := Normalize(`{"bio": 42, "rules": ["keep this"]}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if u.Bio != nil {
		t.Fatalf("bio should be dropped, got %q", *u.Bio)
	}
	if !reflect.DeepEqual(u.Rules, []string{"keep this"}) {
		t.Fatalf("rules = %v", u.Rules)
	}
}

func TestNormalizeComplete(t *testing.T) {
	full := `{"bio": "b", "voice_style": "v", "persona": {"k": "v"},
		"rules": ["r"], "instructions": ["i"], "example_dialogue": ["Agent: hi"]}`

	if _, err := NormalizeComplete(full); err != nil {
		t.Fatalf("NormalizeComplete(full): %v", err)
	}

	_, err := NormalizeComplete(`{"bio": "b", "rules": ["r"]}`)
	var missing *MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingFieldsError", err)
	}
	want := []string{"voice_style", "persona", "instructions", "example_dialogue"}
	if !reflect.DeepEqual(missing.Fields, want) {
		t.Fatalf("missing fields = %v, want %v", missing.Fields, want)
	}
}
