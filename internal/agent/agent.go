// Package agent is the boundary to the language model: a context and tool
// bindings go in, the final reply text comes out.
package agent

import (
	"context"
	"errors"

	"github.com/m-mizutani/gollem"

	"github.com/suPer8Hu/agent-backend/internal/ai"
)

var ErrEmptyResponse = errors.New("agent returned no text")

type Request struct {
	SystemPrompt string
	// Messages holds the prior turns, oldest first, followed by the new user turn.
	Messages []ai.Message
	MaxTurns int
	Model    string
	Tools    []gollem.Tool
}

type Response struct {
	Text  string
	Model string
}

type Runner interface {
	Run(ctx context.Context, req Request) (*Response, error)
}

// Streamer is implemented by runners that can stream a tool-less reply.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan string, <-chan error, error)
}
