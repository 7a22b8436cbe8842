package cmd

import (
	"github.com/spf13/cobra"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

func analyzeCmd() *cobra.Command {
	a := sweepctl.New()
	cmd := &cobra.Command{
		Use:   "analyze <manifest.yaml>",
		Short: "Collect per-job results and write the sweep CSV",
		Long: `Derives every job's status, scrapes the final energy terms and
convergence from the solver logs, counts output files, writes a per-job CSV
into the results directory, and prints the best parameter sets.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Analyze(args[0])
		},
	}
	return cmd
}
