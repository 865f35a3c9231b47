package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/core"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a project and keep its index current",
		Long: `Run an incremental update, then watch the project for filesystem
changes and apply them to the index as they happen. Edits are
debounced, renames are recognized without re-embedding unrelated
files, and ignore-rule changes trigger a rescan.

Runs until interrupted with Ctrl+C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runWatch(ctx, cmd, root)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root string) error {
	c, err := newCore(root)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if !quietMode {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", root)
	}

	err = c.Watch(ctx, root, core.IndexOptions{})
	if errors.Is(err, context.Canceled) {
		if !quietMode {
			fmt.Fprintln(cmd.OutOrStdout(), "Stopped.")
		}
		return nil
	}
	return err
}
