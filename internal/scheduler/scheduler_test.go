package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/conclave-labs/conclave/pkg/models"
)

// fakeUnit is a deterministic in-process deliberation unit for scheduler
// tests. It emits one round event per configured round and records when
// each item started and what context it received.
type fakeUnit struct {
	rounds     int
	roundDelay time.Duration

	mu        sync.Mutex
	startedAt map[string]time.Time
	endedAt   map[string]time.Time
	contexts  map[string]Context
	failIDs   map[string]bool
	execCount int
}

func newFakeUnit(rounds int, roundDelay time.Duration) *fakeUnit {
	return &fakeUnit{
		rounds:     rounds,
		roundDelay: roundDelay,
		startedAt:  make(map[string]time.Time),
		endedAt:    make(map[string]time.Time),
		contexts:   make(map[string]Context),
		failIDs:    make(map[string]bool),
	}
}

func (u *fakeUnit) RoundBudget(item *models.WorkItem) int {
	return u.rounds
}

func (u *fakeUnit) Execute(ctx context.Context, item *models.WorkItem, dctx Context, onEvent func(UnitEvent)) (*models.WorkResult, error) {
	u.mu.Lock()
	u.startedAt[item.ID] = time.Now()
	u.contexts[item.ID] = dctx
	u.execCount++
	fail := u.failIDs[item.ID]
	u.mu.Unlock()

	for r := 1; r <= u.rounds; r++ {
		if u.roundDelay > 0 {
			time.Sleep(u.roundDelay)
		}
		if onEvent != nil {
			onEvent(UnitEvent{
				Type:    EventRoundCompleted,
				ItemID:  item.ID,
				Round:   r,
				Summary: fmt.Sprintf("%s summary after round %d", item.ID, r),
			})
		}
	}

	u.mu.Lock()
	u.endedAt[item.ID] = time.Now()
	u.mu.Unlock()

	if fail {
		return nil, errors.New("deliberation collapsed")
	}

	return &models.WorkResult{
		ItemID:         item.ID,
		Goal:           item.Goal,
		Synthesis:      "synthesis for " + item.ID,
		Recommendation: "recommendation for " + item.ID,
		Contributions:  u.rounds * 2,
		Cost:           0.25,
		ParticipantIDs: []string{"p1", "p2"},
		Summaries: []models.ParticipantSummary{
			{ParticipantID: "p1", Persona: "analyst", Position: "position of p1 on " + item.ID},
			{ParticipantID: "p2", Persona: "critic", Position: "position of p2 on " + item.ID},
		},
	}, nil
}

func (u *fakeUnit) started(id string) (time.Time, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	t, ok := u.startedAt[id]
	return t, ok
}

func (u *fakeUnit) ended(id string) time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.endedAt[id]
}

func (u *fakeUnit) contextFor(id string) Context {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.contexts[id]
}

func drainEvents(s *Scheduler) []Event {
	var events []Event
	for e := range s.Events() {
		events = append(events, e)
	}
	return events
}

func chainItems() []*models.WorkItem {
	return []*models.WorkItem{
		{ID: "A", Goal: "first question"},
		{ID: "B", Goal: "second question", DependsOn: []string{"A"}},
		{ID: "C", Goal: "third question", DependsOn: []string{"A", "B"}},
	}
}

func resultIDs(results []*models.WorkResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ItemID
	}
	return ids
}

func TestBatchRunOrdersResultsByInput(t *testing.T) {
	unit := newFakeUnit(2, 0)
	cfg := models.DefaultScheduleConfig()
	s := New(unit, cfg)

	done := make(chan []Event, 1)
	go func() { done <- drainEvents(s) }()

	results, err := s.Run(context.Background(), chainItems())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := resultIDs(results)
	if len(ids) != 3 || ids[0] != "A" || ids[1] != "B" || ids[2] != "C" {
		t.Errorf("expected results in original order [A B C], got %v", ids)
	}

	events := <-done
	var batchStarts int
	for _, e := range events {
		if e.Type == EventBatchStarted {
			batchStarts++
		}
	}
	if batchStarts != 3 {
		t.Errorf("expected 3 batch_started events for the chain, got %d", batchStarts)
	}
}

func TestBatchRunSerializesAcrossBatches(t *testing.T) {
	unit := newFakeUnit(1, 10*time.Millisecond)
	s := New(unit, models.DefaultScheduleConfig())
	go drainEvents(s)

	if _, err := s.Run(context.Background(), chainItems()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bStart, _ := unit.started("B")
	if aEnd := unit.ended("A"); bStart.Before(aEnd) {
		t.Error("expected B to start only after A's batch settled")
	}
	cStart, _ := unit.started("C")
	if bEnd := unit.ended("B"); cStart.Before(bEnd) {
		t.Error("expected C to start only after B's batch settled")
	}
}

func TestBatchRunHandsMemoryToLaterBatches(t *testing.T) {
	unit := newFakeUnit(1, 0)
	s := New(unit, models.DefaultScheduleConfig())
	go drainEvents(s)

	if _, err := s.Run(context.Background(), chainItems()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mem := unit.contextFor("A").Memory; len(mem) != 0 {
		t.Errorf("expected empty memory for first batch, got %v", mem)
	}
	bMem := unit.contextFor("B").Memory
	if len(bMem) != 2 {
		t.Fatalf("expected memory from A's 2 participants, got %v", bMem)
	}
	if pos := bMem["p1"]; pos == "" {
		t.Error("expected p1's prior position in B's memory")
	}
	// C's memory concatenates positions from both A and B.
	cMem := unit.contextFor("C").Memory
	for _, pid := range []string{"p1", "p2"} {
		if len(cMem[pid]) <= len(bMem[pid]) {
			t.Errorf("expected %s's memory to grow across batches", pid)
		}
	}
}

func TestBatchRunFailureSettlesSiblingsAndStopsLaterBatches(t *testing.T) {
	unit := newFakeUnit(1, 5*time.Millisecond)
	unit.failIDs["B"] = true

	items := []*models.WorkItem{
		{ID: "A", Goal: "a"},
		{ID: "B", Goal: "b"},
		{ID: "C", Goal: "c"},
		{ID: "D", Goal: "d", DependsOn: []string{"A", "B"}},
	}
	s := New(unit, models.DefaultScheduleConfig())

	done := make(chan []Event, 1)
	go func() { done <- drainEvents(s) }()

	results, err := s.Run(context.Background(), items)

	var aggErr *AggregateError
	if !errors.As(err, &aggErr) {
		t.Fatalf("expected *AggregateError, got %v", err)
	}
	if ids := aggErr.FailedIDs(); len(ids) != 1 || ids[0] != "B" {
		t.Errorf("expected failed IDs [B], got %v", ids)
	}

	// Siblings A and C settled and are returned; D never started.
	if ids := resultIDs(results); len(ids) != 2 || ids[0] != "A" || ids[1] != "C" {
		t.Errorf("expected surviving results [A C], got %v", ids)
	}
	if _, started := unit.started("D"); started {
		t.Error("expected D to never start after batch failure")
	}

	events := <-done
	var sawItemFailed, sawScheduleCompleted bool
	for _, e := range events {
		if e.Type == EventItemFailed && e.ItemID == "B" {
			sawItemFailed = true
		}
		if e.Type == EventScheduleCompleted {
			sawScheduleCompleted = true
		}
	}
	if !sawItemFailed {
		t.Error("expected an item_failed event for B")
	}
	if sawScheduleCompleted {
		t.Error("expected no schedule_completed event after failure")
	}
}

func TestBatchRunMultipleFailuresAllListed(t *testing.T) {
	unit := newFakeUnit(1, 0)
	unit.failIDs["A"] = true
	unit.failIDs["C"] = true

	items := []*models.WorkItem{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	s := New(unit, models.DefaultScheduleConfig())
	go drainEvents(s)

	_, err := s.Run(context.Background(), items)

	var aggErr *AggregateError
	if !errors.As(err, &aggErr) {
		t.Fatalf("expected *AggregateError, got %v", err)
	}
	ids := aggErr.FailedIDs()
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "C" {
		t.Errorf("expected failed IDs [A C], got %v", ids)
	}
}

func TestRunCycleFallsBackToSequential(t *testing.T) {
	unit := newFakeUnit(1, 5*time.Millisecond)
	items := []*models.WorkItem{
		{ID: "A", DependsOn: []string{"C"}},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "C", DependsOn: []string{"B"}},
	}
	s := New(unit, models.DefaultScheduleConfig())
	go drainEvents(s)

	results, err := s.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("expected cycle fallback to succeed, got %v", err)
	}
	if ids := resultIDs(results); len(ids) != 3 {
		t.Fatalf("expected all 3 items executed sequentially, got %v", ids)
	}

	// Strictly serialized: each item starts after the previous ended.
	bStart, _ := unit.started("B")
	if bStart.Before(unit.ended("A")) {
		t.Error("expected sequential fallback to serialize A before B")
	}
}

func TestRunEmptyInput(t *testing.T) {
	unit := newFakeUnit(1, 0)
	s := New(unit, models.DefaultScheduleConfig())
	go drainEvents(s)

	results, err := s.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestScheduleCompletedAggregates(t *testing.T) {
	unit := newFakeUnit(2, 0)
	s := New(unit, models.DefaultScheduleConfig())

	done := make(chan []Event, 1)
	go func() { done <- drainEvents(s) }()

	if _, err := s.Run(context.Background(), chainItems()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := <-done
	var final *Event
	for i := range events {
		if events[i].Type == EventScheduleCompleted {
			final = &events[i]
		}
	}
	if final == nil {
		t.Fatal("expected a schedule_completed event")
	}
	if final.Succeeded != 3 || final.Failed != 0 {
		t.Errorf("expected 3 succeeded / 0 failed, got %d/%d", final.Succeeded, final.Failed)
	}
	if final.Cost <= 0 || final.Contributions <= 0 {
		t.Errorf("expected aggregate cost and contributions, got %f/%d", final.Cost, final.Contributions)
	}
	if len(final.ResultIDs) != 3 || final.ResultIDs[0] != "A" {
		t.Errorf("expected ordered result IDs, got %v", final.ResultIDs)
	}
}
