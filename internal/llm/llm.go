// Package llm defines the chat completion port used by the answerer.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role
	Content string
}

// Completer returns the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
