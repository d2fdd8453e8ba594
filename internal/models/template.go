package models

import (
	"time"
)

// Template is a persona specification consumed by a downstream
// conversational agent. A template with a nil OriginalID is an
// original; otherwise it is a copy pointing at its lineage root.
type Template struct {
	ID              int64             `json:"id" db:"id"`
	Name            string            `json:"name" db:"name"`
	Bio             string            `json:"bio" db:"bio"`
	VoiceStyle      string            `json:"voice_style" db:"voice_style"`
	Persona         map[string]string `json:"persona" db:"persona"`
	Rules           []string          `json:"rules" db:"rules"`
	Instructions    []string          `json:"instructions" db:"instructions"`
	ExampleDialogue []string          `json:"example_dialogue" db:"example_dialogue"`
	Published       bool              `json:"published" db:"published"`
	PublishedAt     *time.Time        `json:"published_at,omitempty" db:"published_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
	OriginalID      *int64            `json:"original_id,omitempty" db:"original_id"`
	VersionNumber   int               `json:"version_number" db:"version_number"`
	VersionNote     *string           `json:"version_note,omitempty" db:"version_note"`
	CategoryID      *int64            `json:"category_id,omitempty" db:"category_id"`
	Tags            []Tag             `json:"tags,omitempty" db:"-"`
}

// IsOriginal reports whether this template is the root of its lineage.
func (t *Template) IsOriginal() bool { return t.OriginalID == nil }

type Category struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Tag struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
