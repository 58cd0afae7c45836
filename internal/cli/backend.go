package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/agent"
	"github.com/suPer8Hu/agent-backend/internal/ai"
	"github.com/suPer8Hu/agent-backend/internal/app"
	"github.com/suPer8Hu/agent-backend/internal/chat"
	"github.com/suPer8Hu/agent-backend/internal/localmemory"
	"github.com/suPer8Hu/agent-backend/internal/memory"
)

// chatBackend is what the REPL talks to: the record store through the chat
// service, or flat JSON files when offline.
type chatBackend interface {
	Ask(ctx context.Context, conversationID int64, prompt string) (string, error)
	Stats(ctx context.Context, conversationID int64) (*memory.Stats, error)
	Clear(ctx context.Context, conversationID int64) (int64, error)
	Conversations(ctx context.Context) ([]int64, error)
	NewConversation(ctx context.Context) (int64, error)
}

type onlineBackend struct {
	app *app.App
}

func (b *onlineBackend) Ask(ctx context.Context, conversationID int64, prompt string) (string, error) {
	res, err := b.app.Chat.Ask(ctx, chat.AskInput{ConversationID: &conversationID, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return res.Reply, nil
}

func (b *onlineBackend) Stats(ctx context.Context, conversationID int64) (*memory.Stats, error) {
	return b.app.Memory.Statistics(ctx, conversationID)
}

func (b *onlineBackend) Clear(ctx context.Context, conversationID int64) (int64, error) {
	return b.app.Memory.Clear(ctx, memory.ClearScope{ConversationID: &conversationID})
}

func (b *onlineBackend) Conversations(ctx context.Context) ([]int64, error) {
	return b.app.Memory.ListConversationIDs(ctx)
}

func (b *onlineBackend) NewConversation(ctx context.Context) (int64, error) {
	c, err := b.app.Chat.NewConversation(ctx, nil)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

const offlinePrefix = "conversation_"

// offlineBackend keeps one JSON transcript per conversation under dir.
type offlineBackend struct {
	dir          string
	keepLast     int
	runner       agent.Runner
	systemPrompt string
	model        string
}

func (b *offlineBackend) store(conversationID int64) *localmemory.Store {
	name := fmt.Sprintf("%s%d.json", offlinePrefix, conversationID)
	return localmemory.New(filepath.Join(b.dir, name), b.keepLast)
}

func (b *offlineBackend) Ask(ctx context.Context, conversationID int64, prompt string) (string, error) {
	st := b.store(conversationID)
	user := ai.Message{Role: ai.RoleUser, Content: prompt}
	res, err := b.runner.Run(ctx, agent.Request{
		SystemPrompt: b.systemPrompt,
		Messages:     append(st.Load(), user),
		Model:        b.model,
	})
	if err != nil {
		return "", err
	}
	if err := st.Append(user, ai.Message{Role: ai.RoleAssistant, Content: res.Text}); err != nil {
		return "", err
	}
	return res.Text, nil
}

func (b *offlineBackend) Stats(_ context.Context, conversationID int64) (*memory.Stats, error) {
	stats := &memory.Stats{ConversationID: conversationID}
	for _, m := range b.store(conversationID).Load() {
		stats.TotalMessages++
		switch m.Role {
		case ai.RoleUser:
			stats.UserMessages++
		case ai.RoleAssistant:
			stats.AssistantMessages++
		}
	}
	return stats, nil
}

func (b *offlineBackend) Clear(ctx context.Context, conversationID int64) (int64, error) {
	stats, _ := b.Stats(ctx, conversationID)
	if err := b.store(conversationID).Clear(); err != nil {
		return 0, err
	}
	return stats.TotalMessages, nil
}

func (b *offlineBackend) Conversations(context.Context) ([]int64, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []int64{}, nil
		}
		return nil, goerr.Wrap(err, "failed to read offline memory dir", goerr.V("dir", b.dir))
	}
	ids := []int64{}
	for _, e := range entries {
		name, ok := strings.CutPrefix(e.Name(), offlinePrefix)
		if !ok || e.IsDir() {
			continue
		}
		name, ok = strings.CutSuffix(name, ".json")
		if !ok {
			continue
		}
		if id, err := strconv.ParseInt(name, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (b *offlineBackend) NewConversation(ctx context.Context) (int64, error) {
	ids, err := b.Conversations(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}
