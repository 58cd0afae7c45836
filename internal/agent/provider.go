package agent

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/ai"
)

// ProviderRunner answers with a plain chat provider. Tools are ignored.
type ProviderRunner struct {
	registry     *ai.Registry
	provider     string
	defaultModel string
}

func NewProviderRunner(registry *ai.Registry, provider, defaultModel string) *ProviderRunner {
	return &ProviderRunner{registry: registry, provider: provider, defaultModel: defaultModel}
}

func (r *ProviderRunner) resolve(ctx context.Context, req Request) (ai.Provider, string, []ai.Message, error) {
	model := req.Model
	if model == "" {
		model = r.defaultModel
	}
	p, err := r.registry.Get(ctx, r.provider, model)
	if err != nil {
		return nil, "", nil, err
	}
	msgs := make([]ai.Message, 0, len(req.Messages)+1)
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: s})
	}
	msgs = append(msgs, req.Messages...)
	return p, model, msgs, nil
}

func (r *ProviderRunner) Run(ctx context.Context, req Request) (*Response, error) {
	p, model, msgs, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	text, err := p.Chat(ctx, msgs)
	if err != nil {
		return nil, goerr.Wrap(err, "provider chat failed", goerr.V("provider", r.provider), goerr.V("model", model))
	}
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(ErrEmptyResponse, "provider returned empty reply", goerr.V("provider", r.provider))
	}
	return &Response{Text: text, Model: model}, nil
}

// Stream falls back to a single chunk when the provider cannot stream.
func (r *ProviderRunner) Stream(ctx context.Context, req Request) (<-chan string, <-chan error, error) {
	p, model, msgs, err := r.resolve(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if sp, ok := p.(ai.StreamProvider); ok {
		chunks, errs := sp.StreamChat(ctx, msgs)
		return chunks, errs, nil
	}

	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		text, err := p.Chat(ctx, msgs)
		if err != nil {
			errs <- goerr.Wrap(err, "provider chat failed", goerr.V("provider", r.provider), goerr.V("model", model))
			return
		}
		chunks <- text
	}()
	return chunks, errs, nil
}
