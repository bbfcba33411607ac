package bus

// InboundMessage is one trimmed, non-empty line received on a session.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SessionKey string            `json:"session_key"`
	SenderID   string            `json:"sender_id,omitempty"`
	ChatID     string            `json:"chat_id,omitempty"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
