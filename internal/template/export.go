package template

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/personaforge/personaforge/internal/models"
)

// ExportJSON serializes the full record.
func ExportJSON(t *models.Template) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal template %d: %w", t.ID, err)
	}
	return data, nil
}

type cdataValue struct {
	Value string `xml:",cdata"`
}

type xmlMessage struct {
	XMLName         xml.Name   `xml:"message"`
	ID              int64      `xml:"id"`
	Name            string     `xml:"name"`
	Bio             cdataValue `xml:"bio"`
	VoiceStyle      cdataValue `xml:"voice_style"`
	Persona         cdataValue `xml:"persona"`
	Rules           cdataValue `xml:"rules"`
	Instructions    cdataValue `xml:"instructions"`
	ExampleDialogue cdataValue `xml:"example_dialogue"`
	Published       bool       `xml:"published"`
	PublishedAt     string     `xml:"published_at"`
	CreatedAt       string     `xml:"created_at"`
	UpdatedAt       string     `xml:"updated_at"`
	OriginalID      *int64     `xml:"original_id,omitempty"`
	VersionNumber   int        `xml:"version_number"`
	VersionNote     string     `xml:"version_note,omitempty"`
}

// ExportXML serializes the record as XML. Free-text and structured
// fields ride inside CDATA sections so content with '<', '&', or
// embedded JSON braces never breaks the document; the structured
// fields carry their JSON encoding as text.
func ExportXML(t *models.Template) ([]byte, error) {
	persona, err := json.Marshal(t.Persona)
	if err != nil {
		return nil, fmt.Errorf("marshal persona: %w", err)
	}
	rules, err := json.Marshal(t.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	instructions, err := json.Marshal(t.Instructions)
	if err != nil {
		return nil, fmt.Errorf("marshal instructions: %w", err)
	}
	dialogue, err := json.Marshal(t.ExampleDialogue)
	if err != nil {
		return nil, fmt.Errorf("marshal example dialogue: %w", err)
	}

	msg := xmlMessage{
		ID:              t.ID,
		Name:            t.Name,
		Bio:             cdataValue{t.Bio},
		VoiceStyle:      cdataValue{t.VoiceStyle},
		Persona:         cdataValue{string(persona)},
		Rules:           cdataValue{string(rules)},
		Instructions:    cdataValue{string(instructions)},
		ExampleDialogue: cdataValue{string(dialogue)},
		Published:       t.Published,
		PublishedAt:     formatTime(t.PublishedAt),
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.Format(time.RFC3339),
		OriginalID:      t.OriginalID,
		VersionNumber:   t.VersionNumber,
	}
	if t.VersionNote != nil {
		msg.VersionNote = *t.VersionNote
	}

	body, err := xml.MarshalIndent(msg, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal template %d: %w", t.ID, err)
	}
	return append([]byte(xml.Header), body...), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
