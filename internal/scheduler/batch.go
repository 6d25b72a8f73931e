package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/conclave-labs/conclave/internal/graph"
	"github.com/conclave-labs/conclave/pkg/models"
)

// runBatches executes batches strictly in order; all items within a batch
// run concurrently. Before each batch it builds an aggregated memory map
// from every previously completed batch's results. A failed item never
// cancels its siblings: the batch settles fully, then one aggregate error
// is raised and subsequent batches do not start.
func (s *Scheduler) runBatches(ctx context.Context, g *graph.DependencyGraph, batches [][]string) ([]*models.WorkResult, error) {
	started := time.Now()
	resultsByID := make(map[string]*models.WorkResult, g.Size())

	for bi, batch := range batches {
		memory := buildMemory(resultsByID)
		debugLog("[scheduler] batch %d: starting %d item(s), memory from %d participant(s)", bi, len(batch), len(memory))
		s.emitter.Emit(Event{
			Type:       EventBatchStarted,
			BatchIndex: bi,
			Message:    fmt.Sprintf("%d item(s)", len(batch)),
		})

		outcomes := make([]outcome, len(batch))
		var wg sync.WaitGroup
		for i, id := range batch {
			item := g.GetItem(id)
			wg.Add(1)
			go func(i int, item *models.WorkItem) {
				defer wg.Done()
				outcomes[i] = s.executeItem(ctx, item, bi, Context{Memory: memory})
			}(i, item)
		}
		wg.Wait()

		var failures []*UnitFailure
		succeeded := 0
		for _, o := range outcomes {
			if o.err != nil {
				failures = append(failures, &UnitFailure{ItemID: o.itemID, Err: o.err})
				continue
			}
			resultsByID[o.itemID] = o.result
			succeeded++
		}

		s.emitter.Emit(Event{
			Type:       EventBatchCompleted,
			BatchIndex: bi,
			Succeeded:  succeeded,
			Failed:     len(failures),
		})
		debugLog("[scheduler] batch %d settled: %d succeeded, %d failed", bi, succeeded, len(failures))

		if len(failures) > 0 {
			// Do not start subsequent batches.
			return orderedResults(g, resultsByID), NewAggregateError(failures)
		}
	}

	ordered := orderedResults(g, resultsByID)
	s.emitScheduleCompleted(ordered, 0, started)
	return ordered, nil
}

// executeItem runs one item through the unit, emitting lifecycle events.
func (s *Scheduler) executeItem(ctx context.Context, item *models.WorkItem, batchIndex int, dctx Context) outcome {
	s.emitter.Emit(Event{Type: EventItemStarted, ItemID: item.ID, BatchIndex: batchIndex})

	result, err := s.unit.Execute(ctx, item, dctx, s.forwardUnitEvent)
	if err != nil {
		s.emitter.Emit(Event{Type: EventItemFailed, ItemID: item.ID, BatchIndex: batchIndex, Error: err})
		return outcome{itemID: item.ID, err: err}
	}

	s.emitter.Emit(Event{
		Type:       EventItemCompleted,
		ItemID:     item.ID,
		BatchIndex: batchIndex,
		Cost:       result.Cost,
	})
	return outcome{itemID: item.ID, result: result}
}

// buildMemory aggregates participant positions from all completed results
// into a participant id -> concatenated prior positions map.
func buildMemory(resultsByID map[string]*models.WorkResult) map[string]string {
	memory := make(map[string]string)
	for _, res := range resultsByID {
		for _, summary := range res.Summaries {
			if summary.Position == "" {
				continue
			}
			var b strings.Builder
			b.WriteString(memory[summary.ParticipantID])
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "On %q: %s", res.Goal, summary.Position)
			memory[summary.ParticipantID] = b.String()
		}
	}
	return memory
}
