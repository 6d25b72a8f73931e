package deliberate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/conclave-labs/conclave/internal/breaker"
	"github.com/conclave-labs/conclave/internal/provider"
	"github.com/conclave-labs/conclave/internal/scheduler"
	"github.com/conclave-labs/conclave/pkg/models"
)

// Config tunes the deliberation engine.
type Config struct {
	// PanelSize is the number of panel members. Zero uses one per persona.
	PanelSize int
	// Personas overrides the default persona list.
	Personas []string
	// DistillModel is the cheap model used for round summaries, voting,
	// and recommendation distillation.
	DistillModel anthropic.Model
	// ConvergenceThreshold is the lexical alignment score above which the
	// panel is considered converged and remaining rounds are skipped.
	ConvergenceThreshold float64
	// PositionMaxTokens caps each participant's position length.
	PositionMaxTokens int64
}

// DefaultConfig returns the default engine tuning.
func DefaultConfig() Config {
	return Config{
		PanelSize:            3,
		DistillModel:         anthropic.ModelClaude3_5Haiku20241022,
		ConvergenceThreshold: 0.55,
		PositionMaxTokens:    512,
	}
}

// Engine is the deliberation unit: it runs one work item through rounds of
// panel positions, convergence checks, voting, synthesis, and distillation.
// The panel is created once and reused across items so participant ids stay
// stable for cross-item memory. All provider calls go through the injected
// completer (breaker-routed); cache access goes through the cache breaker.
type Engine struct {
	completer provider.Completer
	registry  *breaker.Registry
	cache     RecommendationCache
	cfg       Config
	panel     []participant
}

// NewEngine creates a deliberation engine. cache may be nil to disable the
// recommendation cache.
func NewEngine(completer provider.Completer, registry *breaker.Registry, cache RecommendationCache, cfg Config) *Engine {
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = DefaultConfig().ConvergenceThreshold
	}
	if cfg.PositionMaxTokens <= 0 {
		cfg.PositionMaxTokens = DefaultConfig().PositionMaxTokens
	}
	if cfg.DistillModel == "" {
		cfg.DistillModel = DefaultConfig().DistillModel
	}
	return &Engine{
		completer: completer,
		registry:  registry,
		cache:     cache,
		cfg:       cfg,
		panel:     newPanel(cfg.Personas, cfg.PanelSize),
	}
}

// RoundBudget returns the maximum deliberation rounds for an item.
func (e *Engine) RoundBudget(item *models.WorkItem) int {
	return RoundBudget(item)
}

// Execute runs the full deliberation for one item.
func (e *Engine) Execute(ctx context.Context, item *models.WorkItem, dctx scheduler.Context, onEvent func(scheduler.UnitEvent)) (*models.WorkResult, error) {
	emit := func(ev scheduler.UnitEvent) {
		if onEvent != nil {
			ev.ItemID = item.ID
			onEvent(ev)
		}
	}

	started := time.Now()

	if rec, ok := e.cachedRecommendation(ctx, item.Goal); ok {
		debugLog("[deliberate] item %s: cache hit, skipping deliberation", item.ID)
		return &models.WorkResult{
			ItemID:         item.ID,
			Goal:           item.Goal,
			Synthesis:      rec,
			Recommendation: rec,
			Duration:       time.Since(started),
		}, nil
	}

	budget := e.RoundBudget(item)
	positions := make([]string, len(e.panel))
	var inputTokens, outputTokens int64
	contributions := 0
	roundsRun := 0

	for round := 1; round <= budget; round++ {
		roundsRun = round
		emit(scheduler.UnitEvent{Type: scheduler.EventRoundStarted, Round: round})

		for i, p := range e.panel {
			others := make(map[string]string, len(e.panel)-1)
			for j, q := range e.panel {
				if j != i && positions[j] != "" {
					others[q.id] = positions[j]
				}
			}

			comp, err := e.completer.Complete(ctx, provider.CompletionRequest{
				System:    personaSystem(p.persona),
				Prompt:    positionPrompt(item.Goal, dctx.Text, dctx.Memory[p.id], others, round),
				MaxTokens: e.cfg.PositionMaxTokens,
			})
			if err != nil {
				return nil, fmt.Errorf("participant %s round %d: %w", p.id, round, err)
			}
			positions[i] = comp.Text
			inputTokens += comp.InputTokens
			outputTokens += comp.OutputTokens
			contributions++

			emit(scheduler.UnitEvent{
				Type:          scheduler.EventContribution,
				Round:         round,
				ParticipantID: p.id,
				Message:       comp.Text,
			})
		}

		score := convergenceScore(positions)
		converged := score >= e.cfg.ConvergenceThreshold
		emit(scheduler.UnitEvent{
			Type:    scheduler.EventConvergenceChecked,
			Round:   round,
			Message: fmt.Sprintf("alignment %.2f (threshold %.2f)", score, e.cfg.ConvergenceThreshold),
		})

		summary, usage, err := e.summarizeRound(ctx, item.Goal, positions, round)
		if err != nil {
			return nil, fmt.Errorf("round %d summary: %w", round, err)
		}
		inputTokens += usage.InputTokens
		outputTokens += usage.OutputTokens
		emit(scheduler.UnitEvent{Type: scheduler.EventRoundCompleted, Round: round, Summary: summary})

		if converged {
			debugLog("[deliberate] item %s: converged after round %d (%.2f)", item.ID, round, score)
			break
		}
	}

	emit(scheduler.UnitEvent{Type: scheduler.EventVotingStarted, Round: roundsRun})
	votes, usage, err := e.runVoting(ctx, item.Goal, positions)
	if err != nil {
		return nil, fmt.Errorf("voting: %w", err)
	}
	inputTokens += usage.InputTokens
	outputTokens += usage.OutputTokens

	synthesis, usage, err := e.synthesize(ctx, item.Goal, positions, votes)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}
	inputTokens += usage.InputTokens
	outputTokens += usage.OutputTokens

	recommendation, usage, err := e.distill(ctx, synthesis)
	if err != nil {
		// The synthesis stands on its own; dependents fall back to it.
		debugLog("[deliberate] item %s: distillation failed: %v", item.ID, err)
		recommendation = ""
	} else {
		inputTokens += usage.InputTokens
		outputTokens += usage.OutputTokens
	}

	if recommendation != "" {
		e.storeRecommendation(ctx, item.Goal, recommendation)
	}

	result := &models.WorkResult{
		ItemID:         item.ID,
		Goal:           item.Goal,
		Synthesis:      synthesis,
		Recommendation: recommendation,
		Votes:          votes,
		Contributions:  contributions,
		Cost:           provider.EstimateCost(inputTokens, outputTokens),
		Duration:       time.Since(started),
	}
	for i, p := range e.panel {
		result.ParticipantIDs = append(result.ParticipantIDs, p.id)
		result.Summaries = append(result.Summaries, models.ParticipantSummary{
			ParticipantID: p.id,
			Persona:       p.persona,
			Position:      positions[i],
		})
	}
	return result, nil
}

type usage struct {
	InputTokens  int64
	OutputTokens int64
}

// summarizeRound distills the round's positions into a short summary that
// dependents can consume as partial context.
func (e *Engine) summarizeRound(ctx context.Context, goal string, positions []string, round int) (string, usage, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nPanel positions after round %d:\n", goal, round)
	for i, pos := range positions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, pos)
	}
	b.WriteString("\nSummarize the panel's current thinking in 2-3 sentences, noting agreements and open disputes.")

	comp, err := e.completer.Complete(ctx, provider.CompletionRequest{
		Prompt:    b.String(),
		MaxTokens: 256,
		Model:     e.cfg.DistillModel,
	})
	if err != nil {
		return "", usage{}, err
	}
	return comp.Text, usage{comp.InputTokens, comp.OutputTokens}, nil
}

// runVoting asks each participant which panel member's position is
// strongest. Unparseable ballots count as a vote for the voter's own
// position.
func (e *Engine) runVoting(ctx context.Context, goal string, positions []string) (map[string]int, usage, error) {
	var ballotBody strings.Builder
	fmt.Fprintf(&ballotBody, "Question: %s\n\nFinal positions:\n", goal)
	for i, p := range e.panel {
		fmt.Fprintf(&ballotBody, "- [%s] %s\n", p.id, positions[i])
	}
	ballotBody.WriteString("\nWhich position is strongest overall? Reply with only that member id.")

	votes := make(map[string]int, len(e.panel))
	var total usage
	for _, voter := range e.panel {
		comp, err := e.completer.Complete(ctx, provider.CompletionRequest{
			System:    personaSystem(voter.persona),
			Prompt:    ballotBody.String(),
			MaxTokens: 16,
			Model:     e.cfg.DistillModel,
		})
		if err != nil {
			return nil, total, err
		}
		total.InputTokens += comp.InputTokens
		total.OutputTokens += comp.OutputTokens

		choice := voter.id
		for _, p := range e.panel {
			if strings.Contains(comp.Text, p.id) {
				choice = p.id
				break
			}
		}
		votes[choice]++
	}
	return votes, total, nil
}

// synthesize combines the final positions, weighted by votes, into one
// answer.
func (e *Engine) synthesize(ctx context.Context, goal string, positions []string, votes map[string]int) (string, usage, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nFinal panel positions with vote counts:\n", goal)
	for i, p := range e.panel {
		fmt.Fprintf(&b, "- [%s, %d vote(s)] %s\n", p.id, votes[p.id], positions[i])
	}
	b.WriteString("\nSynthesize these into a single coherent answer. Give most weight to the positions with the most votes, but fold in valid points from the rest.")

	comp, err := e.completer.Complete(ctx, provider.CompletionRequest{
		Prompt:    b.String(),
		MaxTokens: 1024,
	})
	if err != nil {
		return "", usage{}, err
	}
	return comp.Text, usage{comp.InputTokens, comp.OutputTokens}, nil
}

// distill produces the short recommendation dependents consume instead of
// the full synthesis.
func (e *Engine) distill(ctx context.Context, synthesis string) (string, usage, error) {
	comp, err := e.completer.Complete(ctx, provider.CompletionRequest{
		Prompt:    "Distill the following answer into a single actionable recommendation paragraph:\n\n" + synthesis,
		MaxTokens: 256,
		Model:     e.cfg.DistillModel,
	})
	if err != nil {
		return "", usage{}, err
	}
	return comp.Text, usage{comp.InputTokens, comp.OutputTokens}, nil
}

// cachedRecommendation looks up a prior recommendation for the goal through
// the cache breaker. Any failure degrades to a miss.
func (e *Engine) cachedRecommendation(ctx context.Context, goal string) (string, bool) {
	if e.cache == nil || e.registry == nil {
		return "", false
	}

	var rec string
	var ok bool
	err := e.registry.Get(breaker.ServiceCache).Call(ctx, func(ctx context.Context) error {
		var err error
		rec, ok, err = e.cache.GetRecommendation(ctx, GoalKey(goal))
		return err
	})
	if err != nil {
		debugLog("[deliberate] cache lookup failed: %v", err)
		return "", false
	}
	return rec, ok
}

// storeRecommendation writes the recommendation through the cache breaker,
// best-effort.
func (e *Engine) storeRecommendation(ctx context.Context, goal, recommendation string) {
	if e.cache == nil || e.registry == nil {
		return
	}

	err := e.registry.Get(breaker.ServiceCache).Call(ctx, func(ctx context.Context) error {
		return e.cache.PutRecommendation(ctx, GoalKey(goal), recommendation)
	})
	if err != nil {
		debugLog("[deliberate] cache write failed: %v", err)
	}
}
