package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Dependency-aware LLM deliberation scheduler",
	Long: `Conclave runs sets of dependent questions through panel deliberation,
scheduling each item with maximum safe parallelism.

Work items form a dependency graph. In batch mode, Conclave executes them
in dependency-ordered batches, each batch fully concurrent. In speculative
mode, every item starts at once and dependents proceed on their
dependencies' partial progress instead of waiting for final answers.

All outbound provider calls are guarded by per-service circuit breakers,
with automatic fallback to a secondary model when the primary circuit
opens.

Core capabilities:
- Schedules dependent deliberations in parallel batches or speculatively
- Runs multi-persona panels with convergence detection and voting
- Shares partial round summaries with downstream items
- Degrades gracefully under provider faults via circuit breakers
- Persists runs, results, and a recommendation cache in SQLite`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
