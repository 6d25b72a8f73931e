package deliberate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// RecommendationCache stores distilled recommendations keyed by goal hash.
// The cache is best-effort: lookups and writes go through the cache
// breaker, and any failure degrades to a miss.
type RecommendationCache interface {
	// GetRecommendation returns the cached recommendation for a goal key
	// and whether one was found.
	GetRecommendation(ctx context.Context, key string) (string, bool, error)
	// PutRecommendation stores a recommendation under a goal key.
	PutRecommendation(ctx context.Context, key, recommendation string) error
}

// GoalKey derives the cache key for a goal.
func GoalKey(goal string) string {
	sum := sha256.Sum256([]byte(goal))
	return hex.EncodeToString(sum[:])
}
