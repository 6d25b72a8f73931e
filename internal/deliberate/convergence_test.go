package deliberate

import "testing"

func TestConvergenceScoreIdenticalPositions(t *testing.T) {
	positions := []string{
		"adopt incremental migration with feature flags",
		"adopt incremental migration with feature flags",
		"adopt incremental migration with feature flags",
	}
	if score := convergenceScore(positions); score < 0.99 {
		t.Errorf("expected near-perfect alignment, got %f", score)
	}
}

func TestConvergenceScoreDisjointPositions(t *testing.T) {
	positions := []string{
		"rewrite everything immediately tonight",
		"purchase commercial vendor solution instead",
	}
	if score := convergenceScore(positions); score > 0.1 {
		t.Errorf("expected low alignment for disjoint positions, got %f", score)
	}
}

func TestConvergenceScoreSinglePosition(t *testing.T) {
	if score := convergenceScore([]string{"solo position"}); score != 1.0 {
		t.Errorf("expected 1.0 for a single position, got %f", score)
	}
}

func TestConvergenceScorePartialOverlap(t *testing.T) {
	positions := []string{
		"prefer incremental migration using feature flags",
		"prefer incremental rollout using canary deploys",
	}
	score := convergenceScore(positions)
	if score <= 0.1 || score >= 0.9 {
		t.Errorf("expected mid-range alignment, got %f", score)
	}
}
