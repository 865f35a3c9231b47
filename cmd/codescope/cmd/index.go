package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/core"
	"github.com/codescope/codescope/internal/index"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project directory",
		Long: `Index a project directory into the vector store and code graph.

This scans files honoring ignore rules, splits them into syntax-aware
chunks, generates embeddings, and extracts code entities and their
relationships.

Use --force to cancel an in-flight job for the same project first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runIndex(ctx, cmd, root, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Cancel an in-flight job for this project first")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root string, force bool) error {
	c, err := newCore(root)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	progress, done := startProgressPrinter(cmd.OutOrStdout())
	res, err := c.Index(ctx, root, core.IndexOptions{Force: force, Progress: progress})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), res)
	return nil
}

// startProgressPrinter renders progress events as single-line updates.
// The returned channel must be closed when the run finishes; done is
// closed once the printer drains.
func startProgressPrinter(w io.Writer) (chan index.Progress, <-chan struct{}) {
	progress := make(chan index.Progress, 64)
	done := make(chan struct{})
	if quietMode {
		go func() {
			defer close(done)
			for range progress {
			}
		}()
		return progress, done
	}

	go func() {
		defer close(done)
		last := time.Time{}
		for p := range progress {
			// Throttle so large projects don't flood the terminal.
			if time.Since(last) >= 100*time.Millisecond || p.Done+p.Skipped+p.Failed == p.Total {
				fmt.Fprintf(w, "\r%-8s %d/%d files (%d unchanged, %d failed)",
					p.State, p.Done, p.Total, p.Skipped, p.Failed)
				last = time.Now()
			}
		}
		fmt.Fprintln(w)
	}()
	return progress, done
}

func printResult(w io.Writer, res *index.Result) {
	if quietMode {
		return
	}
	fmt.Fprintf(w, "%s: %d files indexed, %d unchanged, %d failed, %d chunks, %d entities in %s\n",
		res.State, res.Files, res.Unchanged, res.Failed,
		res.Chunks, res.Entities, res.Duration.Round(time.Millisecond))
}
