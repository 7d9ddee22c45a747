package models

import "time"

type SecurityEventType string

const (
	EventPathViolation    SecurityEventType = "path_violation"
	EventLockoutTriggered SecurityEventType = "lockout_triggered"
	EventFileMissing      SecurityEventType = "file_missing"
	EventContentMismatch  SecurityEventType = "content_mismatch"
)

type SecurityEvent struct {
	ID         string            `json:"id"`
	Type       SecurityEventType `json:"type"`
	ClientID   string            `json:"client_id,omitempty"`
	File       string            `json:"file,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
