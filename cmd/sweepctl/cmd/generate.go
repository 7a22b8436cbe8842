package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func generateCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "generate <sweep.yaml>",
		Short: "Expand a sweep spec and stage one workspace per job",
		Long: `Validates the sweep spec, expands the parameter grid, renders every
configuration in memory, and stages one workspace per job under the results
directory together with the run manifest. Each workspace is committed
atomically; a pre-existing populated workspace is an error unless
--skip-existing is given.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			skipExisting, err := cmd.Flags().GetBool("skip-existing")
			if err != nil {
				return fmt.Errorf("error reading skip-existing: %s", err)
			}
			maxJobs, err := cmd.Flags().GetInt("max-jobs")
			if err != nil {
				return fmt.Errorf("error reading max-jobs: %s", err)
			}
			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return fmt.Errorf("error reading dry-run: %s", err)
			}
			return a.Generate(args[0], skipExisting, maxJobs, dryRun)
		},
	}
	cmd.Flags().Bool("skip-existing", false, "Skip jobs whose workspace is already populated")
	cmd.Flags().Int("max-jobs", 0, "Stage at most this many jobs (0 means no limit)")
	cmd.Flags().Bool("dry-run", false, "Validate and render everything without touching the filesystem")
	return cmd
}
