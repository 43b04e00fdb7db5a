package llm

import "context"

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by chat completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client generates a completion from a conversation.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
