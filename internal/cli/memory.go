package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

func newMemoryCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect stored memory",
	}
	cmd.AddCommand(newMemoryStatsCmd(flags))
	return cmd
}

func newMemoryStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [conversation-id]",
		Short: "Show per-type counts, or statistics for one conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return goerr.Wrap(err, "conversation id must be an integer", goerr.V("arg", args[0]))
				}
				stats, err := a.Memory.Statistics(ctx, id)
				if err != nil {
					return err
				}
				return printOut(cmd.OutOrStdout(), flags.format, stats, func(w io.Writer) {
					fmt.Fprintf(w, "conversation %d: %d messages (%d user, %d assistant)\n",
						id, stats.TotalMessages, stats.UserMessages, stats.AssistantMessages)
				})
			}

			counts, err := a.Memory.TypeCounts(ctx)
			if err != nil {
				return err
			}
			ids, err := a.Memory.ListConversationIDs(ctx)
			if err != nil {
				return err
			}
			out := map[string]any{"conversations": len(ids), "types": counts}
			return printOut(cmd.OutOrStdout(), flags.format, out, func(w io.Writer) {
				fmt.Fprintf(w, "conversations: %d\n", len(ids))
				for _, c := range counts {
					fmt.Fprintf(w, "%-10s %d\n", c.MemoryType, c.Count)
				}
			})
		},
	}
}
