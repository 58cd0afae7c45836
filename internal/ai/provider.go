package ai

import "context"

// Message is one chat turn in provider wire order.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider completes a conversation with a single assistant reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ModelLister is implemented by providers that can enumerate served models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWire(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
