package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func cleanupCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "cleanup <manifest.yaml>",
		Short: "Delete per-iteration solver outputs from the job workspaces",
		Long: `The solver writes a mesh file per optimization iteration and only the
final ones are usually worth keeping. Deletes every opt_*.vtu/.vtm whose
iteration number differs from --keep-iteration; all other files are left
alone.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			keepIteration, err := cmd.Flags().GetInt("keep-iteration")
			if err != nil {
				return fmt.Errorf("error reading keep-iteration: %s", err)
			}
			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return fmt.Errorf("error reading dry-run: %s", err)
			}
			return a.Cleanup(args[0], keepIteration, dryRun)
		},
	}
	cmd.Flags().Int("keep-iteration", 10, "Iteration whose output files are kept")
	cmd.Flags().Bool("dry-run", false, "List the files that would be deleted without deleting")
	return cmd
}
