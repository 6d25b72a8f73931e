package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conclave-labs/conclave/internal/config"
	"github.com/conclave-labs/conclave/internal/state"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recent schedule runs",
	Long: `Display recent schedule runs and their outcomes.

Without arguments, lists the most recent runs.
With a run id, shows that run's per-item results, including votes and
final recommendations.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of recent runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Try project database first, then global.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = state.ProjectDBPath(cwd)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			dbPath = state.GlobalDBPath()
		}
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded. Run 'conclave run <plan.yaml>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return displayRun(db, args[0])
	}
	return displayRecentRuns(db)
}

// displayRecentRuns lists the most recent schedule runs, newest first.
func displayRecentRuns(db *state.DB) error {
	runs, err := db.RecentRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded. Run 'conclave run <plan.yaml>' to start.")
		return nil
	}

	fmt.Println("Recent Runs:")
	for _, r := range runs {
		elapsed := formatDuration(time.Since(r.StartedAt))
		fmt.Printf("  %s: %s %s, %d/%d items (%s ago, $%.4f, %d contributions)\n",
			r.ID, statusColor(r.Status).Sprint(r.Status), r.Mode,
			r.Succeeded, r.Items, elapsed, r.Cost, r.Contributions)
	}
	return nil
}

// displayRun shows one run with its per-item results.
func displayRun(db *state.DB, id string) error {
	run, err := db.GetRun(id)
	if err != nil {
		return err
	}

	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("  Mode: %s\n", run.Mode)
	fmt.Printf("  Status: %s\n", statusColor(run.Status).Sprint(run.Status))
	fmt.Printf("  Items: %d (%d succeeded, %d failed)\n", run.Items, run.Succeeded, run.Failed)
	fmt.Printf("  Cost: $%.4f across %d contributions\n", run.Cost, run.Contributions)
	fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(run.StartedAt)))
	if run.CompletedAt != nil {
		fmt.Printf("  Duration: %s\n", formatDuration(run.CompletedAt.Sub(run.StartedAt)))
	}

	results, err := db.ResultsForRun(id)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println("Results:")
	for _, r := range results {
		fmt.Printf("  %s: %s\n", r.ItemID, r.Goal)
		if r.Recommendation != "" {
			fmt.Printf("    Recommendation: %s\n", truncate(r.Recommendation, 200))
		} else if r.Synthesis != "" {
			fmt.Printf("    Synthesis: %s\n", truncate(r.Synthesis, 200))
		}
		if len(r.Votes) > 0 {
			fmt.Printf("    Votes: %s\n", formatVotes(r.Votes))
		}
	}
	return nil
}

// statusColor maps a run status to a display color.
func statusColor(status string) *color.Color {
	switch status {
	case state.RunStatusCompleted:
		return color.New(color.FgGreen)
	case state.RunStatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

// formatVotes renders a vote tally in a stable, readable form.
func formatVotes(votes map[string]int) string {
	parts := make([]string, 0, len(votes))
	for id, n := range votes {
		parts = append(parts, fmt.Sprintf("%s=%d", id, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// truncate shortens a string for single-line display.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
