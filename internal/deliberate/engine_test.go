package deliberate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/conclave-labs/conclave/internal/breaker"
	"github.com/conclave-labs/conclave/internal/provider"
	"github.com/conclave-labs/conclave/internal/scheduler"
	"github.com/conclave-labs/conclave/pkg/models"
)

// scriptedCompleter answers each call type deterministically based on the
// prompt's shape. Positions can be made identical (to force convergence)
// or distinct per call (to prevent it).
type scriptedCompleter struct {
	mu        sync.Mutex
	calls     int
	aligned   bool
	err       error
	positions int
	prompts   []string
}

func (f *scriptedCompleter) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}

	var text string
	switch {
	case strings.Contains(req.Prompt, "Reply with only that member id"):
		// Vote for whichever member is listed first on the ballot.
		text = firstBracketed(req.Prompt)
	case strings.HasPrefix(req.Prompt, "Distill the following"):
		text = "distilled recommendation"
	case strings.Contains(req.Prompt, "Summarize the panel's current thinking"):
		text = "panel leaning toward option one"
	case strings.Contains(req.Prompt, "Synthesize these"):
		text = "synthesized combined answer"
	default:
		f.positions++
		if f.aligned {
			text = "everyone should adopt incremental migration approach"
		} else {
			n := f.positions
			text = fmt.Sprintf("viewpoint alpha%d bravo%d charlie%d delta%d echo%d", n, n, n, n, n)
		}
	}
	return &provider.Completion{Text: text, InputTokens: 100, OutputTokens: 50}, nil
}

func (f *scriptedCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedCompleter) sawPrompt(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.prompts {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

func firstBracketed(s string) string {
	open := strings.Index(s, "[")
	if open < 0 {
		return ""
	}
	end := strings.Index(s[open:], "]")
	if end < 0 {
		return ""
	}
	return s[open+1 : open+end]
}

type fakeCache struct {
	mu     sync.Mutex
	rec    string
	hit    bool
	getErr error
	putErr error
	puts   map[string]string
}

func (c *fakeCache) GetRecommendation(ctx context.Context, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	return c.rec, c.hit, nil
}

func (c *fakeCache) PutRecommendation(ctx context.Context, key, recommendation string) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.puts == nil {
		c.puts = make(map[string]string)
	}
	c.puts[key] = recommendation
	return nil
}

func lowItem(goal string) *models.WorkItem {
	return &models.WorkItem{ID: "item-1", Goal: goal, Complexity: models.ComplexityLow}
}

func TestEngineRunsFullDeliberation(t *testing.T) {
	completer := &scriptedCompleter{}
	engine := NewEngine(completer, nil, nil, DefaultConfig())

	var events []scheduler.UnitEvent
	result, err := engine.Execute(context.Background(), lowItem("pick a queue"), scheduler.Context{}, func(e scheduler.UnitEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Low complexity: 2 rounds of 3 positions each.
	if result.Contributions != 6 {
		t.Errorf("expected 6 contributions, got %d", result.Contributions)
	}
	if result.Synthesis != "synthesized combined answer" {
		t.Errorf("unexpected synthesis: %q", result.Synthesis)
	}
	if result.Recommendation != "distilled recommendation" {
		t.Errorf("unexpected recommendation: %q", result.Recommendation)
	}
	if total := countVotes(result.Votes); total != 3 {
		t.Errorf("expected 3 ballots cast, got %d", total)
	}
	if len(result.ParticipantIDs) != 3 || len(result.Summaries) != 3 {
		t.Errorf("expected 3 participants, got %d ids / %d summaries", len(result.ParticipantIDs), len(result.Summaries))
	}
	if result.Cost <= 0 || result.Duration <= 0 {
		t.Errorf("expected positive cost and duration, got %f / %s", result.Cost, result.Duration)
	}

	counts := map[scheduler.EventType]int{}
	for _, e := range events {
		counts[e.Type]++
		if e.ItemID != "item-1" {
			t.Errorf("expected item id on every event, got %q", e.ItemID)
		}
	}
	if counts[scheduler.EventRoundStarted] != 2 || counts[scheduler.EventRoundCompleted] != 2 {
		t.Errorf("expected 2 round events, got %d/%d", counts[scheduler.EventRoundStarted], counts[scheduler.EventRoundCompleted])
	}
	if counts[scheduler.EventContribution] != 6 {
		t.Errorf("expected 6 contribution events, got %d", counts[scheduler.EventContribution])
	}
	if counts[scheduler.EventConvergenceChecked] != 2 {
		t.Errorf("expected a convergence check per round, got %d", counts[scheduler.EventConvergenceChecked])
	}
	if counts[scheduler.EventVotingStarted] != 1 {
		t.Errorf("expected one voting event, got %d", counts[scheduler.EventVotingStarted])
	}
}

func TestEngineConvergenceStopsEarly(t *testing.T) {
	completer := &scriptedCompleter{aligned: true}
	engine := NewEngine(completer, nil, nil, DefaultConfig())

	item := &models.WorkItem{ID: "item-1", Goal: "pick a queue", Complexity: models.ComplexityHigh}
	result, err := engine.Execute(context.Background(), item, scheduler.Context{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Identical positions converge after the first round despite the
	// 6-round budget.
	if result.Contributions != 3 {
		t.Errorf("expected convergence after round 1 (3 contributions), got %d", result.Contributions)
	}
}

func TestEngineVotesConcentrate(t *testing.T) {
	completer := &scriptedCompleter{}
	engine := NewEngine(completer, nil, nil, DefaultConfig())

	result, err := engine.Execute(context.Background(), lowItem("pick a queue"), scheduler.Context{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every scripted ballot names the first listed member.
	if len(result.Votes) != 1 {
		t.Fatalf("expected unanimous ballot, got %v", result.Votes)
	}
	for id, n := range result.Votes {
		if n != 3 {
			t.Errorf("expected 3 votes for %s, got %d", id, n)
		}
	}
}

func TestEngineCacheHitSkipsProviderCalls(t *testing.T) {
	completer := &scriptedCompleter{}
	cache := &fakeCache{rec: "cached recommendation", hit: true}
	engine := NewEngine(completer, breaker.NewRegistry(breaker.DefaultConfig()), cache, DefaultConfig())

	result, err := engine.Execute(context.Background(), lowItem("pick a queue"), scheduler.Context{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recommendation != "cached recommendation" {
		t.Errorf("expected cached recommendation, got %q", result.Recommendation)
	}
	if completer.callCount() != 0 {
		t.Errorf("expected no provider calls on cache hit, got %d", completer.callCount())
	}
}

func TestEngineCacheFailureDegradesToMiss(t *testing.T) {
	completer := &scriptedCompleter{}
	cache := &fakeCache{getErr: errors.New("cache down"), putErr: errors.New("cache down")}
	engine := NewEngine(completer, breaker.NewRegistry(breaker.DefaultConfig()), cache, DefaultConfig())

	result, err := engine.Execute(context.Background(), lowItem("pick a queue"), scheduler.Context{}, nil)
	if err != nil {
		t.Fatalf("expected deliberation despite cache failure, got %v", err)
	}
	if result.Recommendation != "distilled recommendation" {
		t.Errorf("expected fresh recommendation, got %q", result.Recommendation)
	}
}

func TestEngineWritesRecommendationToCache(t *testing.T) {
	completer := &scriptedCompleter{}
	cache := &fakeCache{}
	engine := NewEngine(completer, breaker.NewRegistry(breaker.DefaultConfig()), cache, DefaultConfig())

	if _, err := engine.Execute(context.Background(), lowItem("pick a queue"), scheduler.Context{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cache.puts[GoalKey("pick a queue")]; got != "distilled recommendation" {
		t.Errorf("expected recommendation cached under goal key, got %q", got)
	}
}

func TestEngineStablePanelCarriesMemory(t *testing.T) {
	completer := &scriptedCompleter{}
	engine := NewEngine(completer, nil, nil, DefaultConfig())

	first, err := engine.Execute(context.Background(), lowItem("first question"), scheduler.Context{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Hand one participant's prior position back as memory; the next item's
	// prompt for that participant must include it.
	memory := map[string]string{first.ParticipantIDs[0]: "remembered prior stance"}
	second, err := engine.Execute(context.Background(), &models.WorkItem{ID: "item-2", Goal: "second simple question"}, scheduler.Context{Memory: memory}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ParticipantIDs[0] != first.ParticipantIDs[0] {
		t.Error("expected stable participant ids across items")
	}
	if !completer.sawPrompt("remembered prior stance") {
		t.Error("expected prior-position memory in a position prompt")
	}
}

func TestEngineDependencyContextInPrompts(t *testing.T) {
	completer := &scriptedCompleter{}
	engine := NewEngine(completer, nil, nil, DefaultConfig())

	dctx := scheduler.Context{Text: "upstream concluded option two"}
	if _, err := engine.Execute(context.Background(), lowItem("follow-up question"), dctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !completer.sawPrompt("upstream concluded option two") {
		t.Error("expected dependency context in position prompts")
	}
}

func TestEngineProviderErrorSurfaces(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("model overloaded")}
	engine := NewEngine(completer, nil, nil, DefaultConfig())

	_, err := engine.Execute(context.Background(), lowItem("pick a queue"), scheduler.Context{}, nil)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func countVotes(votes map[string]int) int {
	total := 0
	for _, n := range votes {
		total += n
	}
	return total
}
