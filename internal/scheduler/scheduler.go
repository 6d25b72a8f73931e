package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/conclave-labs/conclave/internal/graph"
	"github.com/conclave-labs/conclave/pkg/models"
)

// Scheduler executes one set of dependent work items with maximum safe
// parallelism. A Scheduler runs a single schedule; its event channel closes
// when Run returns.
type Scheduler struct {
	unit    Unit
	cfg     models.ScheduleConfig
	emitter *EventEmitter
}

// New creates a scheduler around the given deliberation unit.
func New(unit Unit, cfg models.ScheduleConfig) *Scheduler {
	return &Scheduler{
		unit:    unit,
		cfg:     cfg,
		emitter: NewEventEmitter(256),
	}
}

// Events returns the scheduler's event stream. Per-item event order is
// preserved, interleaved across items. The channel closes when Run returns.
func (s *Scheduler) Events() <-chan Event {
	return s.emitter.Events()
}

// Run executes the schedule and returns results reordered to the original
// item order, regardless of completion order. If any item failed, the
// returned error is an *AggregateError listing every failed ID with its
// underlying error; completed results are still returned.
func (s *Scheduler) Run(ctx context.Context, items []*models.WorkItem) ([]*models.WorkResult, error) {
	defer s.emitter.Close()

	g := graph.New()
	g.SetDebugLog(debugLog)
	g.Build(items)

	batches, err := g.Batches()
	if err != nil {
		var cycleErr *graph.CycleError
		if !errors.As(err, &cycleErr) {
			return nil, err
		}
		// A cycle is not fatal: degrade to a trivial one-item-per-batch
		// sequential schedule.
		debugLog("[scheduler] cycle detected (stuck: %v), falling back to sequential batches", cycleErr.StuckIDs)
		return s.runBatches(ctx, g, g.SequentialBatches())
	}

	mode := s.cfg.Mode
	if mode == models.ModeSpeculative && (g.Size() < 2 || !g.HasEdges()) {
		// Nothing to speculate on: run everything as one all-parallel batch.
		debugLog("[scheduler] speculative mode requested but no dependency edges among %d items, using batch mode", g.Size())
		mode = models.ModeBatch
	}

	if mode == models.ModeSpeculative {
		return s.runSpeculative(ctx, g)
	}
	return s.runBatches(ctx, g, batches)
}

// outcome holds one settled item's result or failure.
type outcome struct {
	itemID string
	result *models.WorkResult
	err    error
}

// forwardUnitEvent maps a unit lifecycle event onto the scheduler stream.
// Round summaries ride in the event message.
func (s *Scheduler) forwardUnitEvent(e UnitEvent) {
	msg := e.Message
	if e.Summary != "" {
		msg = e.Summary
	}
	s.emitter.Emit(Event{
		Type:          e.Type,
		ItemID:        e.ItemID,
		Round:         e.Round,
		ParticipantID: e.ParticipantID,
		Message:       msg,
	})
}

// orderedResults reorders settled results to the original item order.
func orderedResults(g *graph.DependencyGraph, byID map[string]*models.WorkResult) []*models.WorkResult {
	var out []*models.WorkResult
	for _, id := range g.Order() {
		if res, ok := byID[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// emitScheduleCompleted emits the final all-complete event with aggregate
// cost/contribution totals and result IDs in original order.
func (s *Scheduler) emitScheduleCompleted(results []*models.WorkResult, failed int, started time.Time) {
	var cost float64
	var contributions int
	ids := make([]string, 0, len(results))
	for _, r := range results {
		cost += r.Cost
		contributions += r.Contributions
		ids = append(ids, r.ItemID)
	}
	s.emitter.Emit(Event{
		Type:          EventScheduleCompleted,
		Succeeded:     len(results),
		Failed:        failed,
		Cost:          cost,
		Contributions: contributions,
		ResultIDs:     ids,
		Message:       time.Since(started).Round(time.Millisecond).String(),
	})
}
