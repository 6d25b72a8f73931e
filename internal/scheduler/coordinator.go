package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PartialProgress is a read-only snapshot of one item's deliberation
// progress. Reads are best-effort fresh: they never lock out the writer
// for long, and only human-readable summaries flow through here.
type PartialProgress struct {
	// ItemID is the work item being tracked.
	ItemID string
	// Goal is the item's goal.
	Goal string
	// MaxRounds is the item's round budget.
	MaxRounds int
	// Round is the latest completed round, 0 before the first.
	Round int
	// Summary is the latest round summary.
	Summary string
	// Complete indicates the deliberation finished.
	Complete bool
	// Synthesis is the final synthesis once complete.
	Synthesis string
	// Recommendation is the final distilled recommendation once complete.
	Recommendation string
}

// progressRecord is the mutable progress state for one item. Writers hold
// the record's own lock; no lock spans multiple records.
type progressRecord struct {
	mu             sync.Mutex
	goal           string
	maxRounds      int
	round          int
	summary        string
	complete       bool
	synthesis      string
	recommendation string

	// ready closes once the item reaches the early-start threshold or
	// completes. Dependents wait on it.
	ready     chan struct{}
	readyOnce sync.Once
}

func (r *progressRecord) markReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// Coordinator is the shared registry of per-item deliberation progress used
// in speculative mode. Dependents wait here for partial (not full)
// dependency progress before starting their own execution.
type Coordinator struct {
	mu               sync.RWMutex
	records          map[string]*progressRecord
	earlyStartRounds int
}

// NewCoordinator creates a coordinator with the given early-start round
// threshold. A dependency is "ready" once it completes that many rounds.
func NewCoordinator(earlyStartRounds int) *Coordinator {
	if earlyStartRounds < 1 {
		earlyStartRounds = 1
	}
	return &Coordinator{
		records:          make(map[string]*progressRecord),
		earlyStartRounds: earlyStartRounds,
	}
}

// Register creates the progress record for an item. Must be called once
// before the item's unit starts.
func (c *Coordinator) Register(itemID, goal string, maxRounds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[itemID]; exists {
		debugLog("[coordinator] item %s already registered, keeping existing record", itemID)
		return
	}
	c.records[itemID] = &progressRecord{
		goal:      goal,
		maxRounds: maxRounds,
		ready:     make(chan struct{}),
	}
	debugLog("[coordinator] registered item %s (max rounds %d)", itemID, maxRounds)
}

func (c *Coordinator) record(itemID string) *progressRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[itemID]
}

// WaitForReady blocks until every listed dependency is ready or completed,
// or the timeout elapses. On timeout it returns false rather than raising,
// letting the caller proceed with whatever partial context is available.
// Unregistered dependency IDs are skipped. A false return never cancels the
// waiting unit's own execution.
func (c *Coordinator) WaitForReady(ctx context.Context, depIDs []string, timeout time.Duration) bool {
	if len(depIDs) == 0 {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, depID := range depIDs {
		rec := c.record(depID)
		if rec == nil {
			debugLog("[coordinator] WaitForReady: dependency %s not registered, skipping", depID)
			continue
		}
		select {
		case <-rec.ready:
		case <-timer.C:
			debugLog("[coordinator] WaitForReady: timed out after %s waiting on %s", timeout, depID)
			return false
		case <-ctx.Done():
			debugLog("[coordinator] WaitForReady: context done while waiting on %s", depID)
			return false
		}
	}
	return true
}

// PartialContext builds a text blob from the listed dependencies,
// preferring each dependency's final recommendation if complete, else its
// latest round summary, else omitting it. The second return value reports
// whether every dependency was ready or complete at read time.
func (c *Coordinator) PartialContext(itemID string, depIDs []string) (string, bool) {
	var b strings.Builder
	allReady := true

	for _, depID := range depIDs {
		rec := c.record(depID)
		if rec == nil {
			allReady = false
			continue
		}

		rec.mu.Lock()
		complete := rec.complete
		round := rec.round
		summary := rec.summary
		synthesis := rec.synthesis
		recommendation := rec.recommendation
		goal := rec.goal
		rec.mu.Unlock()

		switch {
		case complete:
			text := recommendation
			if text == "" {
				text = synthesis
			}
			fmt.Fprintf(&b, "Conclusion of %q (%s): %s\n", goal, depID, text)
		case summary != "":
			fmt.Fprintf(&b, "In-progress deliberation %q (%s), after round %d: %s\n", goal, depID, round, summary)
			if round < c.earlyStartRounds {
				allReady = false
			}
		default:
			allReady = false
		}
	}

	debugLog("[coordinator] PartialContext for %s: %d deps, allReady=%v", itemID, len(depIDs), allReady)
	return b.String(), allReady
}

// UpdateRoundContext records a completed round's summary. Updates are
// monotonic per item: a stale or duplicate round number is ignored.
func (c *Coordinator) UpdateRoundContext(itemID string, round int, summary string) {
	rec := c.record(itemID)
	if rec == nil {
		debugLog("[coordinator] UpdateRoundContext: item %s not registered", itemID)
		return
	}

	rec.mu.Lock()
	if round <= rec.round || rec.complete {
		rec.mu.Unlock()
		return
	}
	rec.round = round
	rec.summary = summary
	reachedThreshold := round >= c.earlyStartRounds
	rec.mu.Unlock()

	if reachedThreshold {
		rec.markReady()
	}
	debugLog("[coordinator] item %s round %d recorded (ready=%v)", itemID, round, reachedThreshold)
}

// MarkComplete freezes an item's record with its final synthesis and
// recommendation. All later reads return the final recommendation, never a
// stale in-progress summary.
func (c *Coordinator) MarkComplete(itemID, synthesis, recommendation string) {
	rec := c.record(itemID)
	if rec == nil {
		debugLog("[coordinator] MarkComplete: item %s not registered", itemID)
		return
	}

	rec.mu.Lock()
	rec.complete = true
	rec.synthesis = synthesis
	rec.recommendation = recommendation
	rec.mu.Unlock()

	rec.markReady()
	debugLog("[coordinator] item %s marked complete", itemID)
}

// Abandon releases any dependents waiting on a failed item without marking
// it complete. Waiters proceed immediately with whatever partial context
// the item produced before failing.
func (c *Coordinator) Abandon(itemID string) {
	rec := c.record(itemID)
	if rec == nil {
		return
	}
	rec.markReady()
	debugLog("[coordinator] item %s abandoned, waiters released", itemID)
}

// Progress returns a snapshot of one item's progress, or nil if the item
// was never registered.
func (c *Coordinator) Progress(itemID string) *PartialProgress {
	rec := c.record(itemID)
	if rec == nil {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return &PartialProgress{
		ItemID:         itemID,
		Goal:           rec.goal,
		MaxRounds:      rec.maxRounds,
		Round:          rec.round,
		Summary:        rec.summary,
		Complete:       rec.complete,
		Synthesis:      rec.synthesis,
		Recommendation: rec.recommendation,
	}
}
