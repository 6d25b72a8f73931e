package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/conclave-labs/conclave/pkg/models"
)

// openTestDB opens and migrates a database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	id := NewRunID()
	if len(id) != 8 {
		t.Errorf("expected short run id, got %q", id)
	}

	if err := db.CreateRun(id, "speculative", 3); err != nil {
		t.Fatalf("create run: %v", err)
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunStatusRunning || run.Items != 3 || run.Mode != "speculative" {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.CompletedAt != nil {
		t.Error("expected no completion time while running")
	}

	if err := db.FinishRun(id, RunStatusCompleted, 3, 0, 1.25, 18); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err = db.GetRun(id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunStatusCompleted || run.Succeeded != 3 || run.Cost != 1.25 || run.Contributions != 18 {
		t.Errorf("unexpected finished run: %+v", run)
	}
	if run.CompletedAt == nil {
		t.Error("expected completion time after finish")
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetRun("missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	// Insert with explicit timestamps to avoid same-second ordering ties.
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		startedAt := formatTime(time.Now().Add(time.Duration(i) * time.Minute))
		if _, err := db.Exec(`
			INSERT INTO runs (id, mode, status, items, started_at) VALUES (?, 'batch', 'completed', 1, ?)
		`, id, startedAt); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}

	runs, err := db.RecentRuns(2)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-new" || runs[1].ID != "run-mid" {
		ids := make([]string, len(runs))
		for i, r := range runs {
			ids[i] = r.ID
		}
		t.Errorf("expected [run-new run-mid], got %v", ids)
	}
}

func TestSaveAndLoadResults(t *testing.T) {
	db := openTestDB(t)

	runID := NewRunID()
	if err := db.CreateRun(runID, "batch", 2); err != nil {
		t.Fatalf("create run: %v", err)
	}

	result := &models.WorkResult{
		ItemID:         "A",
		Goal:           "pick a queue",
		Synthesis:      "use the managed broker",
		Recommendation: "managed broker, revisit at scale",
		Votes:          map[string]int{"p1": 2, "p2": 1},
		Contributions:  6,
		Cost:           0.42,
		Duration:       1500 * time.Millisecond,
		Summaries: []models.ParticipantSummary{
			{ParticipantID: "p1", Persona: "pragmatist", Position: "managed wins"},
			{ParticipantID: "p2", Persona: "skeptic", Position: "cost concern"},
		},
	}
	if err := db.SaveResult(runID, result); err != nil {
		t.Fatalf("save result: %v", err)
	}

	results, err := db.ResultsForRun(runID)
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ItemID != "A" || got.Synthesis != result.Synthesis || got.Recommendation != result.Recommendation {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.Votes["p1"] != 2 || got.Votes["p2"] != 1 {
		t.Errorf("unexpected votes: %v", got.Votes)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("unexpected duration: %s", got.Duration)
	}
	if len(got.Summaries) != 2 || got.Summaries[0].Persona != "pragmatist" {
		t.Errorf("unexpected summaries: %v", got.Summaries)
	}
	if len(got.ParticipantIDs) != 2 {
		t.Errorf("expected participant ids rebuilt from summaries, got %v", got.ParticipantIDs)
	}
}

func TestSaveResultReplacesExisting(t *testing.T) {
	db := openTestDB(t)

	runID := NewRunID()
	if err := db.CreateRun(runID, "batch", 1); err != nil {
		t.Fatalf("create run: %v", err)
	}

	first := &models.WorkResult{ItemID: "A", Goal: "g", Synthesis: "v1"}
	second := &models.WorkResult{ItemID: "A", Goal: "g", Synthesis: "v2"}
	if err := db.SaveResult(runID, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveResult(runID, second); err != nil {
		t.Fatalf("save replacement: %v", err)
	}

	results, err := db.ResultsForRun(runID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(results) != 1 || results[0].Synthesis != "v2" {
		t.Errorf("expected replacement, got %v", results)
	}
}

func TestRecommendationCacheRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, hit, err := db.GetRecommendation(ctx, "key-1"); err != nil || hit {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	if err := db.PutRecommendation(ctx, "key-1", "do the thing"); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, hit, err := db.GetRecommendation(ctx, "key-1")
	if err != nil || !hit || rec != "do the thing" {
		t.Fatalf("expected hit, got %q hit=%v err=%v", rec, hit, err)
	}

	// Replacement overwrites.
	if err := db.PutRecommendation(ctx, "key-1", "do the other thing"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rec, _, _ = db.GetRecommendation(ctx, "key-1")
	if rec != "do the other thing" {
		t.Errorf("expected replacement, got %q", rec)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := openTestDB(t)

	old := formatTime(time.Now().Add(-48 * time.Hour))
	if _, err := db.Exec(`
		INSERT INTO runs (id, mode, status, items, started_at) VALUES ('stale', 'batch', 'completed', 1, ?)
	`, old); err != nil {
		t.Fatalf("insert stale run: %v", err)
	}
	if err := db.SaveResult("stale", &models.WorkResult{ItemID: "A", Goal: "g"}); err != nil {
		t.Fatalf("save stale result: %v", err)
	}
	if err := db.CreateRun("fresh", "batch", 1); err != nil {
		t.Fatalf("create fresh run: %v", err)
	}

	deleted, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 purged run, got %d", deleted)
	}

	if _, err := db.GetRun("fresh"); err != nil {
		t.Errorf("fresh run should survive purge: %v", err)
	}
	results, err := db.ResultsForRun("stale")
	if err != nil {
		t.Fatalf("load stale results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected stale results purged, got %d", len(results))
	}
}
