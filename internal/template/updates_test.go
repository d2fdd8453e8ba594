package template

import (
	"reflect"
	"testing"

	"github.com/personaforge/personaforge/internal/models"
)

func strptr(s string) *string { return &s }

func TestUpdatesFromJSON(t *testing.T) {
	body := []byte(`{"name": "Support Agent", "persona": "{\"tone\": \"calm\"}", "rules": "one rule"}`)

	u, err := UpdatesFromJSON(body)
	if err != nil {
		t.Fatalf("UpdatesFromJSON: %v", err)
	}
	if u.Name == nil || *u.Name != "Support Agent" {
		t.Fatalf("name = %v", u.Name)
	}
	if !reflect.DeepEqual(u.Persona, map[string]string{"tone": "calm"}) {
		t.Fatalf("persona = %v", u.Persona)
	}
	if !reflect.DeepEqual(u.Rules, []string{"one rule"}) {
		t.Fatalf("rules = %v", u.Rules)
	}

	if _, err := UpdatesFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid body")
	}
}

func TestFieldUpdatesIsZero(t *testing.T) {
	if !(FieldUpdates{}).IsZero() {
		t.Fatal("empty updates should be zero")
	}
	if (FieldUpdates{Bio: strptr("")}).IsZero() {
		t.Fatal("present bio should not be zero")
	}
}

func TestApplyMergesPersonaOnEdit(t *testing.T) {
	rec := &models.Template{
		Bio:     "old bio",
		Persona: map[string]string{"age": "30", "tone": "formal"},
		Rules:   []string{"old rule"},
	}

	u := FieldUpdates{
		Bio:     strptr("new bio"),
		Persona: map[string]string{"tone": "casual", "city": "Oslo"},
		Rules:   []string{"rule a", "rule b"},
	}
	u.Apply(rec, true)

	if rec.Bio != "new bio" {
		t.Fatalf("bio = %q", rec.Bio)
	}
	wantPersona := map[string]string{"age": "30", "tone": "casual", "city": "Oslo"}
	if !reflect.DeepEqual(rec.Persona, wantPersona) {
		t.Fatalf("persona = %v, want %v", rec.Persona, wantPersona)
	}
	if !reflect.DeepEqual(rec.Rules, []string{"rule a", "rule b"}) {
		t.Fatalf("rules should replace wholesale, got %v", rec.Rules)
	}
}

func TestApplyReplacesPersonaOnOptimize(t *testing.T) {
	rec := &models.Template{Persona: map[string]string{"age": "30", "tone": "formal"}}

	u := FieldUpdates{Persona: map[string]string{"tone": "casual"}}
	u.Apply(rec, false)

	if !reflect.DeepEqual(rec.Persona, map[string]string{"tone": "casual"}) {
		t.Fatalf("persona = %v", rec.Persona)
	}
}

func TestApplyLeavesAbsentFields(t *testing.T) {
	rec := &models.Template{
		Name:         "keep",
		Bio:          "keep bio",
		Instructions: []string{"keep instruction"},
	}

	(FieldUpdates{VoiceStyle: strptr("new voice")}).Apply(rec, true)

	if rec.Name != "keep" || rec.Bio != "keep bio" {
		t.Fatalf("absent fields changed: name=%q bio=%q", rec.Name, rec.Bio)
	}
	if rec.VoiceStyle != "new voice" {
		t.Fatalf("voice_style = %q", rec.VoiceStyle)
	}
	if !reflect.DeepEqual(rec.Instructions, []string{"keep instruction"}) {
		t.Fatalf("instructions = %v", rec.Instructions)
	}
}

func TestApplyClonesValues(t *testing.T) {
	u := FieldUpdates{
		Persona: map[string]string{"k": "v"},
		Rules:   []string{"r1"},
	}
	rec := &models.Template{}
	u.Apply(rec, false)

	u.Persona["k"] = "mutated"
	u.Rules[0] = "mutated"

	if rec.Persona["k"] != "v" {
		t.Fatalf("persona aliased the update map: %v", rec.Persona)
	}
	if rec.Rules[0] != "r1" {
		t.Fatalf("rules aliased the update slice: %v", rec.Rules)
	}
}
