package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/core"
)

func newUpdateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update [path]",
		Short: "Incrementally update a project's index",
		Long: `Diff the project against its last indexed snapshot and re-index
only what changed: new files, modified files, deletions, and renames.

A project that has never been indexed gets a full pass.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runUpdate(ctx, cmd, root, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Cancel an in-flight job for this project first")
	return cmd
}

func runUpdate(ctx context.Context, cmd *cobra.Command, root string, force bool) error {
	c, err := newCore(root)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	progress, done := startProgressPrinter(cmd.OutOrStdout())
	res, err := c.IncrementalUpdate(ctx, root, core.IndexOptions{Force: force, Progress: progress})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), res)
	return nil
}
