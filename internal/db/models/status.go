package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusEntry is one line of the bot's audit trail.
type StatusEntry struct {
	ID        uuid.UUID         `json:"id"`
	Action    string            `json:"action"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
