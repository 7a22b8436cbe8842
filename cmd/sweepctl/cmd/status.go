package cmd

import (
	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func statusCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "status <manifest.yaml>",
		Short: "Print the status of every job in the run",
		Long: `Derives each job's status from its workspace status marker and, where no
marker exists yet, from the scheduler. Jobs whose terminal state cannot be
trusted are reported as Unknown with a warning.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Status(args[0])
		},
	}
	return cmd
}
