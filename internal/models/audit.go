package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Action     string          `json:"action" db:"action"`
	TemplateID *int64          `json:"template_id,omitempty" db:"template_id"`
	Details    json.RawMessage `json:"details" db:"details"`
	IPAddress  *string         `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
