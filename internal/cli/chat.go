package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/agent-backend/internal/agent"
	"github.com/suPer8Hu/agent-backend/internal/app"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/localmemory"
	"github.com/suPer8Hu/agent-backend/internal/prompt"
)

const chatLongDesc = `Start an interactive chat with the agent.

Commands inside the session:
  /list        list conversations
  /new [id]    switch to conversation id, or start a new one
  /stats       statistics of the current conversation
  /clear       clear the current conversation
  /quit        leave (also /exit or Ctrl+D)

With --offline the record store is not used; each conversation is a JSON
file under --dir that keeps the last --keep-last messages.`

type chatFlags struct {
	offline        bool
	dir            string
	keepLast       int
	conversationID int64
}

func newChatCmd(flags *rootFlags) *cobra.Command {
	cf := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var b chatBackend
			if cf.offline {
				ob, err := newOfflineBackend(cf)
				if err != nil {
					return err
				}
				b = ob
			} else {
				a, err := openApp(ctx, flags, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()
				b = &onlineBackend{app: a}
			}
			return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), b, cf.conversationID)
		},
	}

	home, _ := os.UserHomeDir()
	cmd.Flags().BoolVar(&cf.offline, "offline", false, "Keep memory in local JSON files instead of the database")
	cmd.Flags().StringVar(&cf.dir, "dir", filepath.Join(home, ".agentctl"), "Directory for offline memory")
	cmd.Flags().IntVar(&cf.keepLast, "keep-last", localmemory.DefaultKeepLast, "Messages kept per offline conversation")
	cmd.Flags().Int64VarP(&cf.conversationID, "conversation", "c", 0, "Conversation id to resume (default: a new one)")
	return cmd
}

func newOfflineBackend(cf *chatFlags) (*offlineBackend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load config")
	}
	model := cfg.OllamaModel
	if strings.EqualFold(cfg.AIProvider, "openrouter") {
		model = cfg.OpenRouterModel
	}
	src := prompt.NewSource(cfg.SystemPromptPath, nil, nil)
	return &offlineBackend{
		dir:          cf.dir,
		keepLast:     cf.keepLast,
		runner:       agent.NewProviderRunner(app.NewRegistry(cfg), cfg.AIProvider, model),
		systemPrompt: src.Prompt(context.Background()),
		model:        model,
	}, nil
}

// runREPL is the only place a current conversation id lives.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, b chatBackend, current int64) error {
	if current <= 0 {
		id, err := b.NewConversation(ctx)
		if err != nil {
			return err
		}
		current = id
	}
	fmt.Fprintf(out, "conversation %d. Type /quit to leave.\n", current)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			reply, err := b.Ask(ctx, current, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "assistant> %s\n", reply)
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return nil

		case "/list":
			ids, err := b.Conversations(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			for _, id := range ids {
				marker := " "
				if id == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %d\n", marker, id)
			}

		case "/new":
			if len(fields) > 1 {
				id, err := strconv.ParseInt(fields[1], 10, 64)
				if err != nil || id <= 0 {
					fmt.Fprintf(out, "error: invalid conversation id %q\n", fields[1])
					continue
				}
				current = id
			} else {
				id, err := b.NewConversation(ctx)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				current = id
			}
			fmt.Fprintf(out, "switched to conversation %d\n", current)

		case "/stats":
			stats, err := b.Stats(ctx, current)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "conversation %d: %d messages (%d user, %d assistant)\n",
				current, stats.TotalMessages, stats.UserMessages, stats.AssistantMessages)

		case "/clear":
			n, err := b.Clear(ctx, current)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "cleared %d messages\n", n)

		default:
			fmt.Fprintf(out, "unknown command %s\n", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read input")
	}
	return nil
}
