package template

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/personaforge/personaforge/internal/models"
)

func sampleTemplate() *models.Template {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	published := created.Add(time.Hour)
	note := "Copied from version 1"
	orig := int64(7)
	return &models.Template{
		ID:              42,
		Name:            "Support Agent",
		Bio:             "Handles <orders> & refunds",
		VoiceStyle:      "warm",
		Persona:         map[string]string{"tone": "calm"},
		Rules:           []string{"never promise a refund", "escalate threats"},
		Instructions:    []string{"greet first"},
		ExampleDialogue: []string{"Agent: Hi", "Customer: Hello"},
		Published:       true,
		PublishedAt:     &published,
		CreatedAt:       created,
		UpdatedAt:       published,
		OriginalID:      &orig,
		VersionNumber:   2,
		VersionNote:     &note,
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	data, err := ExportJSON(sampleTemplate())
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	var back models.Template
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if back.ID != 42 || back.Name != "Support Agent" {
		t.Fatalf("round trip lost identity: %+v", back)
	}
	if len(back.Rules) != 2 || back.Rules[0] != "never promise a refund" {
		t.Fatalf("rules = %v", back.Rules)
	}
	if back.VersionNote == nil || *back.VersionNote != "Copied from version 1" {
		t.Fatalf("version_note = %v", back.VersionNote)
	}
}

func TestExportXMLWellFormed(t *testing.T) {
	rec := sampleTemplate()
	rec.Bio = `Loves "quotes", <tags> & JSON {"a": 1}`

	data, err := ExportXML(rec)
	if err != nil {
		t.Fatalf("ExportXML: %v", err)
	}
	if !strings.HasPrefix(string(data), xml.Header) {
		t.Fatal("missing XML declaration")
	}

	var parsed struct {
		XMLName         xml.Name `xml:"message"`
		ID              int64    `xml:"id"`
		Bio             string   `xml:"bio"`
		Persona         string   `xml:"persona"`
		Rules           string   `xml:"rules"`
		ExampleDialogue string   `xml:"example_dialogue"`
		Published       bool     `xml:"published"`
		PublishedAt     string   `xml:"published_at"`
		OriginalID      *int64   `xml:"original_id"`
		VersionNumber   int      `xml:"version_number"`
	}
	if err := xml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("export is not well-formed XML: %v", err)
	}

	if parsed.Bio != rec.Bio {
		t.Fatalf("bio = %q, want %q", parsed.Bio, rec.Bio)
	}

	// Structured fields carry their JSON encoding as CDATA text.
	var persona map[string]string
	if err := json.Unmarshal([]byte(parsed.Persona), &persona); err != nil {
		t.Fatalf("persona payload is not JSON: %v", err)
	}
	if persona["tone"] != "calm" {
		t.Fatalf("persona = %v", persona)
	}
	var rules []string
	if err := json.Unmarshal([]byte(parsed.Rules), &rules); err != nil {
		t.Fatalf("rules payload is not JSON: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %v", rules)
	}

	if parsed.PublishedAt != "2025-03-01T13:00:00Z" {
		t.Fatalf("published_at = %q", parsed.PublishedAt)
	}
	if parsed.OriginalID == nil || *parsed.OriginalID != 7 {
		t.Fatalf("original_id = %v", parsed.OriginalID)
	}
	if parsed.VersionNumber != 2 {
		t.Fatalf("version_number = %d", parsed.VersionNumber)
	}
}

func TestExportXMLUnpublished(t *testing.T) {
	rec := sampleTemplate()
	rec.Published = false
	rec.PublishedAt = nil
	rec.OriginalID = nil
	rec.VersionNote = nil

	data, err := ExportXML(rec)
	if err != nil {
		t.Fatalf("ExportXML: %v", err)
	}

	var parsed struct {
		PublishedAt string `xml:"published_at"`
	}
	if err := xml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.PublishedAt != "" {
		t.Fatalf("published_at = %q, want empty", parsed.PublishedAt)
	}
	if strings.Contains(string(data), "<original_id>") {
		t.Fatal("original_id should be omitted for originals")
	}
}
