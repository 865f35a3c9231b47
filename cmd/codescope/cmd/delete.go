package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete [path]",
		Short: "Delete a project's index",
		Long: `Remove everything indexed for a project: its vector collection,
graph space, file records, and registry entry. Source files are
never touched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			return runDelete(cmd, root, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runDelete(cmd *cobra.Command, root string, yes bool) error {
	if !yes {
		fmt.Fprintf(cmd.OutOrStdout(), "Delete all index data for %s? [y/N] ", root)
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	c, err := newCore(root)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.Delete(cmd.Context(), root); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted index for %s\n", root)
	return nil
}
