package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show a project's index status",
		Long: `Display the indexing state of a project: file counts by status,
chunk totals, last indexed time, and current memory pressure level.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type statusOutput struct {
	Project     string    `json:"project"`
	Path        string    `json:"path"`
	Status      string    `json:"status"`
	Job         string    `json:"job"`
	Files       int       `json:"files"`
	Indexed     int       `json:"indexed"`
	Pending     int       `json:"pending"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Chunks      int       `json:"chunks"`
	Memory      string    `json:"memory"`
	LastIndexed time.Time `json:"last_indexed,omitempty"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, root string, jsonOutput bool) error {
	c, err := newCore(root)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	st, err := c.Status(ctx, root)
	if err != nil {
		return err
	}

	out := statusOutput{
		Project: st.Project.Name,
		Path:    st.Project.Path,
		Status:  string(st.Project.Status),
		Job:     string(st.Active),
		Files:   st.Files,
		Indexed: st.Indexed,
		Pending: st.Pending,
		Failed:  st.Failed,
		Skipped: st.Skipped,
		Chunks:  st.Chunks,
		Memory:  st.Memory,
	}
	out.LastIndexed = st.Project.LastIndexedAt

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Project:  %s (%s)\n", out.Project, out.Path)
	fmt.Fprintf(w, "Status:   %s", out.Status)
	if out.Job != "idle" {
		fmt.Fprintf(w, " (job: %s)", out.Job)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files:    %d total, %d indexed, %d pending, %d failed, %d skipped\n",
		out.Files, out.Indexed, out.Pending, out.Failed, out.Skipped)
	fmt.Fprintf(w, "Chunks:   %d\n", out.Chunks)
	fmt.Fprintf(w, "Memory:   %s\n", out.Memory)
	if !out.LastIndexed.IsZero() {
		fmt.Fprintf(w, "Indexed:  %s\n", out.LastIndexed.Format(time.RFC3339))
	}
	return nil
}
