package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/openai"

	"github.com/suPer8Hu/agent-backend/internal/ai"
)

const defaultMaxTurns = 10

// ClientFactory returns an LLM client bound to a model.
type ClientFactory func(ctx context.Context, model string) (gollem.LLMClient, error)

// OpenAIClientFactory builds clients for any OpenAI compatible endpoint,
// Ollama's /v1 included.
func OpenAIClientFactory(baseURL, apiKey string) ClientFactory {
	return func(ctx context.Context, model string) (gollem.LLMClient, error) {
		client, err := openai.New(ctx, apiKey,
			openai.WithModel(model),
			openai.WithBaseURL(baseURL),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create openai client",
				goerr.V("base_url", baseURL), goerr.V("model", model))
		}
		return client, nil
	}
}

// GollemRunner runs a tool calling agent loop.
type GollemRunner struct {
	factory      ClientFactory
	defaultModel string
	logger       *slog.Logger

	mu      sync.Mutex
	clients map[string]gollem.LLMClient
}

func NewGollemRunner(factory ClientFactory, defaultModel string, logger *slog.Logger) *GollemRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &GollemRunner{
		factory:      factory,
		defaultModel: defaultModel,
		logger:       logger,
		clients:      make(map[string]gollem.LLMClient),
	}
}

func (r *GollemRunner) client(ctx context.Context, model string) (gollem.LLMClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	c, err := r.factory(ctx, model)
	if err != nil {
		return nil, err
	}
	r.clients[model] = c
	return c, nil
}

func (r *GollemRunner) Run(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = r.defaultModel
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	if len(req.Messages) == 0 {
		return nil, goerr.New("agent request has no messages")
	}

	client, err := r.client(ctx, model)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("model", model)
	agent := gollem.New(client,
		gollem.WithSystemPrompt(req.SystemPrompt),
		gollem.WithTools(req.Tools...),
		gollem.WithLoopLimit(maxTurns),
		gollem.WithToolMiddleware(
			func(next gollem.ToolHandler) gollem.ToolHandler {
				return func(ctx context.Context, tr *gollem.ToolExecRequest) (*gollem.ToolExecResponse, error) {
					logger.Debug("tool call", "tool", tr.Tool.Name)
					resp, err := next(ctx, tr)
					if resp != nil && resp.Error != nil {
						logger.Warn("tool failed", "tool", tr.Tool.Name, "error", resp.Error)
					}
					return resp, err
				}
			},
		),
	)

	resp, err := agent.Execute(ctx, gollem.Text(Transcript(req.Messages)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to execute agent", goerr.V("model", model))
	}
	text := strings.TrimSpace(strings.Join(resp.Texts, "\n"))
	if text == "" {
		return nil, goerr.Wrap(ErrEmptyResponse, "agent finished without a reply", goerr.V("model", model))
	}
	return &Response{Text: text, Model: model}, nil
}

// Transcript renders prior turns as a role labelled transcript followed by
// the new message. A lone message is passed through unchanged.
func Transcript(messages []ai.Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	last := messages[len(messages)-1]

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range messages[:len(messages)-1] {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nCurrent message:\n")
	b.WriteString(last.Content)
	return b.String()
}
