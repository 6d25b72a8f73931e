package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conclave-labs/conclave/internal/breaker"
	"github.com/conclave-labs/conclave/internal/config"
	"github.com/conclave-labs/conclave/internal/deliberate"
	"github.com/conclave-labs/conclave/internal/graph"
	"github.com/conclave-labs/conclave/internal/provider"
	"github.com/conclave-labs/conclave/internal/scheduler"
	"github.com/conclave-labs/conclave/internal/state"
	"github.com/conclave-labs/conclave/pkg/models"
)

var (
	runMode    string
	runVerbose bool
	runNoCache bool
	runDryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a schedule of deliberations",
	Long: `Execute a plan of dependent deliberations.

The plan is a YAML file listing work items, each with an id, a goal, and
optional depends_on / complexity fields:

  mode: speculative
  items:
    - id: queue
      goal: Which message queue should we adopt?
      complexity: high
    - id: retries
      goal: How should consumers handle retries?
      depends_on: [queue]

Items are scheduled with maximum safe parallelism. In batch mode,
dependency-ordered batches run fully concurrently and join at batch
boundaries. In speculative mode, everything starts at once and dependents
consume their dependencies' partial round summaries instead of waiting
for final answers.

Provider calls route through per-service circuit breakers; when the
primary model's circuit opens, calls fail over to the fallback model.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Override schedule mode: batch or speculative")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print every participant contribution")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "Skip the recommendation cache")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the execution batches and exit")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Debug.LogPath != "" {
		logger, err := scheduler.NewDebugLogger(cfg.Debug.LogPath)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
		scheduler.SetDebugLogger(logger)
		deliberate.SetDebugLogger(logger)
	}

	plan, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("mode") {
		cfg.Schedule.Mode = runMode
	} else if plan.Mode != "" {
		cfg.Schedule.Mode = plan.Mode
	}
	schedCfg, err := cfg.ScheduleModel()
	if err != nil {
		return err
	}

	if runDryRun {
		return printDryRun(plan.Items, schedCfg.Mode)
	}

	// Composition root: breakers, providers, store, engine, scheduler.
	registry := cfg.BreakerRegistry()

	if !cfg.Anthropic.UseAWSBedrock {
		if _, err := config.GetAPIKey(cfg); err != nil {
			return err
		}
	}

	primary, err := provider.NewClient(provider.ClientConfig{
		Service:       breaker.ServiceLLM,
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	var fallback provider.Completer
	if cfg.Anthropic.FallbackModel != "" {
		fb, err := provider.NewClient(provider.ClientConfig{
			Service:       breaker.ServiceLLMFallback,
			Model:         anthropic.Model(cfg.Anthropic.FallbackModel),
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			return fmt.Errorf("create fallback provider: %w", err)
		}
		fallback = fb
	}
	selector := provider.NewLLMSelector(registry, primary, fallback)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = state.ProjectDBPath(cwd)
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var cache deliberate.RecommendationCache
	if cfg.Store.CacheEnabled && !runNoCache {
		cache = db
	}

	engine := deliberate.NewEngine(selector, registry, cache, deliberate.Config{
		PanelSize:            cfg.Panel.Size,
		Personas:             cfg.Panel.Personas,
		DistillModel:         anthropic.Model(cfg.Anthropic.DistillModel),
		ConvergenceThreshold: cfg.Panel.ConvergenceThreshold,
	})
	sched := scheduler.New(engine, schedCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	runID := state.NewRunID()
	persist(registry, "record run", func() error {
		return db.CreateRun(runID, string(schedCfg.Mode), len(plan.Items))
	})

	fmt.Printf("Run %s: %d item(s), %s mode\n\n", runID, len(plan.Items), schedCfg.Mode)

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeEvents(sched.Events(), runVerbose)
	}()

	results, runErr := sched.Run(ctx, plan.Items)
	<-done

	var cost float64
	var contributions int
	for _, r := range results {
		cost += r.Cost
		contributions += r.Contributions
		result := r
		persist(registry, "save result", func() error {
			return db.SaveResult(runID, result)
		})
	}

	status := state.RunStatusCompleted
	failed := 0
	var aggErr *scheduler.AggregateError
	if errors.As(runErr, &aggErr) {
		status = state.RunStatusFailed
		failed = len(aggErr.Failures)
	} else if runErr != nil {
		status = state.RunStatusFailed
	}
	persist(registry, "finish run", func() error {
		return db.FinishRun(runID, status, len(results), failed, cost, contributions)
	})

	printResults(results)

	fmt.Println()
	if runErr != nil {
		color.New(color.FgRed).Printf("Run %s failed: %v\n", runID, runErr)
		return fmt.Errorf("schedule failed: %w", runErr)
	}
	color.New(color.FgGreen).Printf("Run %s completed: %d item(s), $%.4f, %d contributions\n",
		runID, len(results), cost, contributions)
	return nil
}

// persist runs a best-effort state write through the datastore breaker.
// Persistence failures never fail the schedule; they surface as warnings.
func persist(registry *breaker.Registry, what string, fn func() error) {
	if err := registry.Get(breaker.ServiceDatastore).CallSync(fn); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", what, err)
	}
}

// printDryRun shows how the plan would be batched without executing it.
func printDryRun(items []*models.WorkItem, mode models.ScheduleMode) error {
	g := graph.New()
	g.Build(items)

	batches, err := g.Batches()
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			fmt.Printf("Dependency cycle detected (stuck: %s); items run sequentially.\n",
				strings.Join(cycleErr.StuckIDs, ", "))
			batches = g.SequentialBatches()
		} else {
			return err
		}
	}

	fmt.Printf("Mode: %s\n", mode)
	for i, batch := range batches {
		fmt.Printf("Batch %d: %s\n", i+1, strings.Join(batch, ", "))
	}
	if mode == models.ModeSpeculative && g.HasEdges() {
		fmt.Println("(speculative mode starts all items at once; batches show the dependency order)")
	}
	return nil
}

// consumeEvents prints scheduler events until the stream closes.
func consumeEvents(events <-chan scheduler.Event, verbose bool) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for event := range events {
		switch event.Type {
		case scheduler.EventBatchStarted:
			cyan.Printf("[BATCH %d] started\n", event.BatchIndex+1)
		case scheduler.EventBatchCompleted:
			cyan.Printf("[BATCH %d] done: %d succeeded, %d failed\n",
				event.BatchIndex+1, event.Succeeded, event.Failed)
		case scheduler.EventItemStarted:
			fmt.Printf("[START] %s\n", event.ItemID)
		case scheduler.EventItemWaiting:
			yellow.Printf("[WAIT] %s: %s\n", event.ItemID, event.Message)
		case scheduler.EventItemCompleted:
			green.Printf("[DONE] %s\n", event.ItemID)
		case scheduler.EventItemFailed:
			red.Printf("[FAILED] %s: %v\n", event.ItemID, event.Error)
		case scheduler.EventRoundCompleted:
			fmt.Printf("  [%s round %d] %s\n", event.ItemID, event.Round, truncate(event.Message, 120))
		case scheduler.EventContribution:
			if verbose {
				fmt.Printf("  [%s round %d] %s: %s\n",
					event.ItemID, event.Round, event.ParticipantID, truncate(event.Message, 120))
			}
		case scheduler.EventConvergenceChecked:
			if verbose {
				fmt.Printf("  [%s round %d] %s\n", event.ItemID, event.Round, event.Message)
			}
		case scheduler.EventScheduleCompleted:
			fmt.Printf("\nSchedule settled in %s\n", event.Message)
		}
	}
}

// printResults prints each item's final recommendation (or synthesis when
// distillation was skipped).
func printResults(results []*models.WorkResult) {
	if len(results) == 0 {
		return
	}

	bold := color.New(color.Bold)
	fmt.Println()
	for _, r := range results {
		bold.Printf("%s: %s\n", r.ItemID, r.Goal)
		fmt.Printf("  %s\n", strings.TrimSpace(r.ContextSnippet()))
	}
}
