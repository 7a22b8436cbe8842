package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweepctl",
		Short: "sweepctl orchestrates PolyFEM parameter sweeps on an HPC cluster.",
	}

	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.sweepctl.yaml)")
	cmd.PersistentFlags().String("results-dir", "results", "directory holding job workspaces and the run manifest")
	viper.BindPFlag("resultsDir", cmd.PersistentFlags().Lookup("results-dir"))

	cmd.AddCommand(
		generateCmd(),
		submitCmd(),
		statusCmd(),
		watchCmd(),
		cancelCmd(),
		analyzeCmd(),
		cleanupCmd(),
		versionCmd(),
	)

	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
