package chat

import (
	"github.com/suPer8Hu/agent-backend/internal/ai"
	"github.com/suPer8Hu/agent-backend/internal/memory"
)

// BuildContext returns the prior turns, oldest first, followed by the new
// user turn.
func BuildContext(history []memory.AgentMessage, prompt string) []ai.Message {
	out := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, ai.Message{Role: ai.RoleUser, Content: prompt})
}
