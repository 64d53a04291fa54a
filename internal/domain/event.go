package domain

import "time"

type SessionEventType string

const (
	SessionInserted SessionEventType = "inserted"
	SessionRemoved  SessionEventType = "removed"
	SessionState    SessionEventType = "state"
)

// SessionEvent is what observers of the server see about a session.
type SessionEvent struct {
	Type  SessionEventType `json:"type"`
	ID    SessionID        `json:"session_id"`
	Axis  string           `json:"axis,omitempty"`
	State string           `json:"state,omitempty"`
	At    time.Time        `json:"at"`
}
