package domain

import "time"

// Role identifies the author class of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageEvent is the transit payload published on conversation topics.
// It has no store of its own; it exists only on the bus between a writer
// and the relay.
type MessageEvent struct {
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
}

// JobStatusEvent is published on job:<id>:status after every successful
// lifecycle transition.
type JobStatusEvent struct {
	JobID     string    `json:"jobId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
