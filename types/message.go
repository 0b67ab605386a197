package types

import "time"

// MessageType classifies entries in the agent message log.
type MessageType string

const (
	MessageTypeInfo     MessageType = "info"
	MessageTypeResult   MessageType = "result"
	MessageTypeError    MessageType = "error"
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
)

// AgentMessage is one entry in the append-only audit log of agent
// communication. Messages are never edited or removed once appended.
type AgentMessage struct {
	ID               string       `json:"id"`
	Sender           string       `json:"sender"`
	Receiver         string       `json:"receiver,omitempty"`
	Type             MessageType  `json:"type"`
	Content          string       `json:"content"`
	Timestamp        time.Time    `json:"timestamp"`
	Priority         TaskPriority `json:"priority"`
	RequiresResponse bool         `json:"requires_response"`
}
