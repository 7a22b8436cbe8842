package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func submitCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "submit <manifest.yaml>",
		Short: "Submit staged jobs to the cluster scheduler",
		Long: `Submits every unsubmitted job recorded in the manifest and writes the
scheduler ids back. Rejections the scheduler confirmed are retried a bounded
number of times; unconfirmed failures are never retried, since the submission
may have gone through. The manifest path may also point at the results
directory containing it.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			maxJobs, err := cmd.Flags().GetInt("max-jobs")
			if err != nil {
				return fmt.Errorf("error reading max-jobs: %s", err)
			}
			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return fmt.Errorf("error reading dry-run: %s", err)
			}
			resubmitFailed, err := cmd.Flags().GetBool("resubmit-failed")
			if err != nil {
				return fmt.Errorf("error reading resubmit-failed: %s", err)
			}
			return a.Submit(args[0], maxJobs, dryRun, resubmitFailed)
		},
	}
	cmd.Flags().Int("max-jobs", 0, "Submit at most this many jobs (0 means no limit)")
	cmd.Flags().Bool("dry-run", false, "List the jobs that would be submitted without submitting")
	cmd.Flags().Bool("resubmit-failed", false, "Also resubmit jobs whose status is Failed")
	return cmd
}
