package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conclave-labs/conclave/internal/graph"
	"github.com/conclave-labs/conclave/pkg/models"
)

// runSpeculative starts every item concurrently regardless of dependencies.
// A dependent only waits until each of its dependencies reaches the
// early-start round threshold or fully completes, then proceeds with the
// partial context available at that moment. Failures are collected via
// fan-out/fan-in without cancelling siblings, and final results are always
// reordered to the original item index.
func (s *Scheduler) runSpeculative(ctx context.Context, g *graph.DependencyGraph) ([]*models.WorkResult, error) {
	started := time.Now()
	coord := NewCoordinator(s.cfg.EarlyStartRounds)
	order := g.Order()

	for _, id := range order {
		item := g.GetItem(id)
		coord.Register(id, item.Goal, s.unit.RoundBudget(item))
	}
	debugLog("[scheduler] speculative wave: starting all %d items", len(order))

	outcomes := make([]outcome, len(order))
	var wg sync.WaitGroup
	for i, id := range order {
		item := g.GetItem(id)
		deps := g.GetDependencies(id)
		wg.Add(1)
		go func(i int, item *models.WorkItem, deps []string) {
			defer wg.Done()
			outcomes[i] = s.executeSpeculative(ctx, coord, item, deps)
		}(i, item, deps)
	}
	wg.Wait()

	resultsByID := make(map[string]*models.WorkResult, len(order))
	var failures []*UnitFailure
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, &UnitFailure{ItemID: o.itemID, Err: o.err})
			continue
		}
		resultsByID[o.itemID] = o.result
	}

	ordered := orderedResults(g, resultsByID)
	if len(failures) > 0 {
		return ordered, NewAggregateError(failures)
	}
	s.emitScheduleCompleted(ordered, 0, started)
	return ordered, nil
}

// executeSpeculative runs one item of a speculative wave: wait for partial
// dependency progress, execute with the context available, publish progress
// for dependents as rounds complete.
func (s *Scheduler) executeSpeculative(ctx context.Context, coord *Coordinator, item *models.WorkItem, deps []string) outcome {
	if len(deps) > 0 {
		s.emitter.Emit(Event{
			Type:    EventItemWaiting,
			ItemID:  item.ID,
			Message: fmt.Sprintf("waiting on %d dependenc(ies)", len(deps)),
		})

		ready := coord.WaitForReady(ctx, deps, s.cfg.MaxWait)
		if !ready && s.cfg.FailOnWaitTimeout {
			err := fmt.Errorf("dependencies %v not ready after %s", deps, s.cfg.MaxWait)
			coord.Abandon(item.ID)
			s.emitter.Emit(Event{Type: EventItemFailed, ItemID: item.ID, Error: err})
			return outcome{itemID: item.ID, err: err}
		}
		if !ready {
			// Availability over consistency: proceed with whatever partial
			// context exists.
			debugLog("[scheduler] item %s: wait timed out, continuing with reduced context", item.ID)
		}
	}

	contextText, allReady := coord.PartialContext(item.ID, deps)
	debugLog("[scheduler] item %s: starting with %d byte(s) of partial context (allReady=%v)", item.ID, len(contextText), allReady)

	s.emitter.Emit(Event{Type: EventItemStarted, ItemID: item.ID})

	result, err := s.unit.Execute(ctx, item, Context{Text: contextText}, func(e UnitEvent) {
		if e.Type == EventRoundCompleted {
			coord.UpdateRoundContext(item.ID, e.Round, e.Summary)
		}
		s.forwardUnitEvent(e)
	})
	if err != nil {
		// Release dependents immediately; they degrade to the context the
		// failed item produced before dying.
		coord.Abandon(item.ID)
		s.emitter.Emit(Event{Type: EventItemFailed, ItemID: item.ID, Error: err})
		return outcome{itemID: item.ID, err: err}
	}

	coord.MarkComplete(item.ID, result.Synthesis, result.Recommendation)
	s.emitter.Emit(Event{Type: EventItemCompleted, ItemID: item.ID, Cost: result.Cost})
	return outcome{itemID: item.ID, result: result}
}
