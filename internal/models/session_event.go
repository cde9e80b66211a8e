package models

import "time"

// Session event types written to the journal.
const (
	EventSessionOpen  = "SESSION_OPEN"
	EventSessionClose = "SESSION_CLOSE"
	EventLoadOK       = "LOAD_OK"
	EventLoadFailed   = "LOAD_FAILED"
	EventPlay         = "PLAY"
	EventPause        = "PAUSE"
	EventScrub        = "SCRUB"
	EventHeatFailed   = "HEAT_FAILED"
)

// SessionEvent is a single journal entry.
type SessionEvent struct {
	EventID     string    `json:"event_id"`
	SessionID   string    `json:"session_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // SESSION_OPEN | LOAD_OK | PLAY | SCRUB | HEAT_FAILED ...
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
