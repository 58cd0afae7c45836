package ai

import "context"

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both channels are closed when the stream ends; at most one error is sent.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// Collect drains a stream into the full reply.
func Collect(chunks <-chan string, errs <-chan error) (string, error) {
	var out []byte
	for c := range chunks {
		out = append(out, c...)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return string(out), nil
}
