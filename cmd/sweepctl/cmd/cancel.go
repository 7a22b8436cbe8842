package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func cancelCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "cancel <manifest.yaml> [jobId...]",
		Short: "Cancel jobs on the cluster scheduler",
		Long: `Relays cancellation to the scheduler for the named jobs, or for every
job still active when --all is given. Workspaces are left untouched.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return fmt.Errorf("error reading all: %s", err)
			}
			jobIds := args[1:]
			if !all && len(jobIds) == 0 {
				return errors.New("specify at least one job id, or --all")
			}
			if all && len(jobIds) > 0 {
				return errors.New("--all cannot be combined with job ids")
			}
			return a.Cancel(args[0], jobIds, all)
		},
	}
	cmd.Flags().Bool("all", false, "Cancel every job that is still active")
	return cmd
}
