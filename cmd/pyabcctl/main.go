package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pyabcctl",
		Short: "Likelihood-free Bayesian inference over simulator models",
		Long: `pyabcctl runs ABC-SMC inference: it evolves weighted particle
populations through generations of shrinking acceptance thresholds,
approximating the posterior over model parameters, and over the models
themselves when a problem defines more than one.`,
	}

	rootCmd.PersistentFlags().Bool("json", false, "emit output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newProblemsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
