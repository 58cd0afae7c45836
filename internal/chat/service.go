package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agent-backend/internal/agent"
	"github.com/suPer8Hu/agent-backend/internal/ai"
	"github.com/suPer8Hu/agent-backend/internal/auth"
	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/memory"
)

var (
	ErrForbidden      = errors.New("conversation belongs to another user")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrNoStreaming    = errors.New("streaming is not available")
	ErrNoQueue        = errors.New("job queue is not configured")
	ErrIdempotencyKey = errors.New("idempotency key too long")
)

const (
	defaultContextWindow = 20
	defaultMaxTurns      = 10
	maxIdempotencyKeyLen = 128
)

type PromptSource interface {
	Prompt(ctx context.Context) string
}

type ModelSource interface {
	Current(ctx context.Context) string
}

type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// ToolBuilder returns the tools bound to one conversation.
type ToolBuilder func(conversationID int64) []gollem.Tool

type Options struct {
	ContextWindowSize int
	DefaultMaxTurns   int
	Prompt            PromptSource
	Model             ModelSource
	Tools             ToolBuilder
	Streamer          agent.Streamer
	Publisher         JobPublisher
	Logger            *slog.Logger
}

type Service struct {
	mem    *memory.Repo
	jobs   *Repo
	runner agent.Runner
	opts   Options
}

func NewService(mem *memory.Repo, jobs *Repo, runner agent.Runner, opts Options) *Service {
	if opts.ContextWindowSize <= 0 || opts.ContextWindowSize > 100 {
		opts.ContextWindowSize = defaultContextWindow
	}
	if opts.DefaultMaxTurns <= 0 {
		opts.DefaultMaxTurns = defaultMaxTurns
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{mem: mem, jobs: jobs, runner: runner, opts: opts}
}

// SetPublisher attaches the queue once it is connected.
func (s *Service) SetPublisher(p JobPublisher) { s.opts.Publisher = p }

type AskInput struct {
	// ConversationID nil starts a new conversation.
	ConversationID *int64
	Prompt         string
	MaxTurns       int
	Principal      *auth.Principal
}

type AskResult struct {
	ConversationID     int64  `json:"conversation_id"`
	Reply              string `json:"response"`
	Model              string `json:"model"`
	UserMessageID      uint64 `json:"user_message_id"`
	AssistantMessageID uint64 `json:"assistant_message_id"`
}

func userIDOf(p *auth.Principal) *uint64 {
	if p == nil {
		return nil
	}
	id := p.UserID
	return &id
}

// resolveConversation allocates a conversation when id is nil, otherwise
// registers it for the caller if unregistered and checks the caller may
// write to it.
func (s *Service) resolveConversation(ctx context.Context, p *auth.Principal, id *int64) (int64, error) {
	if id == nil {
		c, err := s.mem.CreateConversation(ctx, userIDOf(p))
		if err != nil {
			return 0, err
		}
		return c.ID, nil
	}

	c, err := s.mem.EnsureConversation(ctx, *id, userIDOf(p))
	if err != nil {
		return 0, err
	}
	if p == nil || p.IsAdmin() {
		return c.ID, nil
	}
	if c.OwnerID != nil {
		if *c.OwnerID != p.UserID {
			return 0, goerr.Wrap(ErrForbidden, "ask denied",
				goerr.V("conversation_id", *id), goerr.V("user_id", p.UserID))
		}
		return c.ID, nil
	}

	// Without an owner, the records decide: another user's turns keep this
	// caller out.
	others, err := s.mem.HasRecordsOfOtherUsers(ctx, c.ID, &p.UserID)
	if err != nil {
		return 0, err
	}
	if others {
		return 0, goerr.Wrap(ErrForbidden, "ask denied",
			goerr.V("conversation_id", *id), goerr.V("user_id", p.UserID))
	}
	return c.ID, nil
}

func (s *Service) maxTurns(n int) int {
	if n <= 0 {
		return s.opts.DefaultMaxTurns
	}
	return n
}

func (s *Service) systemPrompt(ctx context.Context) string {
	if s.opts.Prompt == nil {
		return ""
	}
	return s.opts.Prompt.Prompt(ctx)
}

func (s *Service) model(ctx context.Context) string {
	if s.opts.Model == nil {
		return ""
	}
	return s.opts.Model.Current(ctx)
}

func (s *Service) buildRequest(ctx context.Context, conversationID int64, prompt string, maxTurns int, withTools bool) (agent.Request, error) {
	history, err := s.mem.ReadForAgent(ctx, conversationID, s.opts.ContextWindowSize, memory.TypeChat)
	if err != nil {
		return agent.Request{}, err
	}
	req := agent.Request{
		SystemPrompt: s.systemPrompt(ctx),
		Messages:     BuildContext(history, prompt),
		MaxTurns:     s.maxTurns(maxTurns),
		Model:        s.model(ctx),
	}
	if withTools && s.opts.Tools != nil {
		req.Tools = s.opts.Tools(conversationID)
	}
	return req, nil
}

// persistTurn stores the user and assistant pair atomically. A non-empty
// jobID is marked succeeded in the same transaction.
func (s *Service) persistTurn(ctx context.Context, conversationID int64, prompt, reply string, userID *uint64, jobID string) (uint64, uint64, error) {
	var then func(tx *gorm.DB, rows []memory.Message) error
	if jobID != "" {
		then = func(tx *gorm.DB, rows []memory.Message) error {
			return markJobSucceeded(tx, jobID, rows[1].ID, reply)
		}
	}
	rows, err := s.mem.AppendBatchThen(ctx, conversationID, []memory.AgentMessage{
		{Role: ai.RoleUser, Content: prompt},
		{Role: ai.RoleAssistant, Content: reply},
	}, memory.TypeChat, userID, then)
	if err != nil {
		return 0, 0, err
	}
	return rows[0].ID, rows[1].ID, nil
}

func (s *Service) ask(ctx context.Context, conversationID int64, prompt string, maxTurns int, userID *uint64, jobID string) (*AskResult, error) {
	req, err := s.buildRequest(ctx, conversationID, prompt, maxTurns, true)
	if err != nil {
		return nil, err
	}
	resp, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "agent run failed", goerr.V("conversation_id", conversationID))
	}
	userMsgID, assistantMsgID, err := s.persistTurn(ctx, conversationID, prompt, resp.Text, userID, jobID)
	if err != nil {
		return nil, err
	}
	return &AskResult{
		ConversationID:     conversationID,
		Reply:              resp.Text,
		Model:              resp.Model,
		UserMessageID:      userMsgID,
		AssistantMessageID: assistantMsgID,
	}, nil
}

// Ask runs one agent turn and records it. Nothing is recorded when the agent
// fails.
func (s *Service) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, goerr.Wrap(ErrEmptyPrompt, "ask rejected")
	}
	convID, err := s.resolveConversation(ctx, in.Principal, in.ConversationID)
	if err != nil {
		return nil, err
	}
	return s.ask(ctx, convID, prompt, in.MaxTurns, userIDOf(in.Principal), "")
}

func (s *Service) NewConversation(ctx context.Context, p *auth.Principal) (*memory.Conversation, error) {
	return s.mem.CreateConversation(ctx, userIDOf(p))
}

func (s *Service) Summary(ctx context.Context, conversationID int64) (*memory.Stats, error) {
	return s.mem.Statistics(ctx, conversationID)
}

// CanRead allows anonymous callers and admins. A user may read a conversation
// they own or hold records in; an unregistered, empty conversation has
// nothing to protect.
func (s *Service) CanRead(ctx context.Context, p *auth.Principal, conversationID int64) error {
	if p == nil || p.IsAdmin() {
		return nil
	}

	c, err := s.mem.GetConversation(ctx, conversationID)
	registered := err == nil
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return err
	}
	if registered && c.OwnerID != nil && *c.OwnerID == p.UserID {
		return nil
	}

	owns, err := s.mem.HasRecordsOwnedBy(ctx, conversationID, p.UserID)
	if err != nil {
		return err
	}
	if owns {
		return nil
	}

	if !registered {
		stats, err := s.mem.Statistics(ctx, conversationID)
		if err != nil {
			return err
		}
		if stats.TotalMessages == 0 {
			return nil
		}
	}
	return goerr.Wrap(ErrForbidden, "read denied",
		goerr.V("conversation_id", conversationID), goerr.V("user_id", p.UserID))
}

// CanModify guards destructive operations. Admins pass. An owned
// conversation is limited to its owner; otherwise the caller must not be
// clearing records written by another user.
func (s *Service) CanModify(ctx context.Context, p *auth.Principal, conversationID int64) error {
	if p != nil && p.IsAdmin() {
		return nil
	}
	denied := goerr.Wrap(ErrForbidden, "modify denied",
		goerr.V("conversation_id", conversationID), goerr.V("user_id", userIDOf(p)))

	c, err := s.mem.GetConversation(ctx, conversationID)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return err
	}
	if err == nil && c.OwnerID != nil {
		if p == nil || *c.OwnerID != p.UserID {
			return denied
		}
		return nil
	}

	others, err := s.mem.HasRecordsOfOtherUsers(ctx, conversationID, userIDOf(p))
	if err != nil {
		return err
	}
	if others {
		return denied
	}
	return nil
}

// StreamEvent is either a delta or, last, the outcome.
type StreamEvent struct {
	Delta              string
	Done               bool
	Reply              string
	AssistantMessageID uint64
	Err                error
}

// AskStream streams a tool-less reply. Authorization and setup errors are
// returned directly; later failures arrive as the final event. The turn is
// recorded only after the stream completes.
func (s *Service) AskStream(ctx context.Context, in AskInput) (int64, <-chan StreamEvent, error) {
	if s.opts.Streamer == nil {
		return 0, nil, goerr.Wrap(ErrNoStreaming, "ask stream rejected")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return 0, nil, goerr.Wrap(ErrEmptyPrompt, "ask stream rejected")
	}
	convID, err := s.resolveConversation(ctx, in.Principal, in.ConversationID)
	if err != nil {
		return 0, nil, err
	}
	req, err := s.buildRequest(ctx, convID, prompt, in.MaxTurns, false)
	if err != nil {
		return 0, nil, err
	}
	chunks, errs, err := s.opts.Streamer.Stream(ctx, req)
	if err != nil {
		return 0, nil, err
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		send := func(ev StreamEvent) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		var b strings.Builder
		for c := range chunks {
			b.WriteString(c)
			send(StreamEvent{Delta: c})
		}
		if err := <-errs; err != nil {
			send(StreamEvent{Done: true, Err: err})
			return
		}

		reply := b.String()
		_, assistantID, err := s.persistTurn(ctx, convID, prompt, reply, userIDOf(in.Principal), "")
		if err != nil {
			send(StreamEvent{Done: true, Err: err})
			return
		}
		send(StreamEvent{Done: true, Reply: reply, AssistantMessageID: assistantID})
	}()
	return convID, out, nil
}

// EnqueueAsk records a job and publishes it. With an idempotency key, a
// repeated request returns the first job and publishes nothing.
func (s *Service) EnqueueAsk(ctx context.Context, in AskInput, idempotencyKey string) (*Job, bool, error) {
	if s.opts.Publisher == nil {
		return nil, false, goerr.Wrap(ErrNoQueue, "enqueue rejected")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, false, goerr.Wrap(ErrEmptyPrompt, "enqueue rejected")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		return nil, false, goerr.Wrap(ErrIdempotencyKey, "enqueue rejected", goerr.V("length", len(idempotencyKey)))
	}

	uid := userIDOf(in.Principal)
	if idempotencyKey != "" {
		existing, err := s.jobs.GetJobByUserAndIdempotencyKey(ctx, uid, idempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrJobNotFound) {
			return nil, false, err
		}
	}

	convID, err := s.resolveConversation(ctx, in.Principal, in.ConversationID)
	if err != nil {
		return nil, false, err
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to generate job id")
	}
	j := &Job{
		ID:             jobID,
		UserID:         uid,
		ConversationID: convID,
		Prompt:         prompt,
		MaxTurns:       in.MaxTurns,
		Status:         JobQueued,
	}
	if idempotencyKey != "" {
		j.IdempotencyKey = &idempotencyKey
	}

	job, created, err := s.jobs.CreateJobOrGetExisting(ctx, j)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}

	if err := s.opts.Publisher.PublishJob(ctx, job.ID); err != nil {
		if markErr := s.jobs.MarkJobFailed(ctx, job.ID, "enqueue failed"); markErr != nil {
			s.opts.Logger.Error("failed to mark unpublished job", "job_id", job.ID, "error", markErr)
		}
		return nil, false, goerr.Wrap(err, "failed to publish job", goerr.V("job_id", job.ID))
	}
	return job, true, nil
}

// GetJob hides jobs of other users behind ErrJobNotFound.
func (s *Service) GetJob(ctx context.Context, p *auth.Principal, jobID string) (*Job, error) {
	j, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != nil && !p.IsAdmin() && (p == nil || p.UserID != *j.UserID) {
		return nil, goerr.Wrap(ErrJobNotFound, "job hidden", goerr.V("job_id", jobID))
	}
	return j, nil
}

// RunJob executes a queued job on the worker. Ownership was checked when the
// job was enqueued. The turn and the succeeded status commit together, so a
// redelivered job never records its turn twice.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	if err := s.jobs.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}
	j, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == JobSucceeded {
		return nil
	}

	if _, err := s.ask(ctx, j.ConversationID, j.Prompt, j.MaxTurns, j.UserID, jobID); err != nil {
		if markErr := s.jobs.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			s.opts.Logger.Error("failed to mark job failed", "job_id", jobID, "error", markErr)
		}
		return err
	}
	return nil
}
