package bus

import "time"

type EventType string

const (
	EventSessionOpened EventType = "session_opened"
	EventSessionClosed EventType = "session_closed"
	EventIntentRouted  EventType = "intent_routed"
	EventRouteFailed   EventType = "route_failed"
)

// Event describes one step in a session's lifecycle.
type Event struct {
	Type       EventType     `json:"type"`
	At         time.Time     `json:"at"`
	Channel    string        `json:"channel,omitempty"`
	SessionKey string        `json:"session_key,omitempty"`
	Intent     string        `json:"intent,omitempty"`
	Messages   int           `json:"messages,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}
