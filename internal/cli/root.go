// Package cli implements the agentctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/agent-backend/internal/app"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/logger"
)

type rootFlags struct {
	format string
	debug  bool
}

func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate the agent backend from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.format, "format", "f", "text", "Output format: json or text")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newChatCmd(flags),
		newUserCmd(flags),
		newMemoryCmd(flags),
	)
	return cmd
}

// openApp loads configuration and builds the services against the record
// store. CLI logging goes to stderr so command output stays parseable.
func openApp(ctx context.Context, flags *rootFlags, stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load config")
	}
	log := logger.New(logger.WithWriter(stderr), logger.WithPretty(true), logger.WithDebug(flags.debug || cfg.LogDebug))

	gdb, err := app.Open(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, gdb, log)
}

func printOut(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return goerr.Wrap(err, "failed to encode output")
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	text(w)
	return nil
}
