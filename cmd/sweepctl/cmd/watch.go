package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func watchCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "watch <manifest.yaml>",
		Short: "Poll job statuses and print changes",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			exitIfInactive, err := cmd.Flags().GetBool("exit-if-inactive")
			if err != nil {
				return fmt.Errorf("error reading exit-if-inactive: %s", err)
			}
			return a.Watch(args[0], exitIfInactive)
		},
	}
	cmd.Flags().Bool("exit-if-inactive", false, "Exit if there are no more active jobs")
	return cmd
}
