package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetRecommendation returns the cached recommendation for a goal key. It
// satisfies the deliberation engine's cache interface; callers route it
// through the cache circuit breaker.
func (db *DB) GetRecommendation(ctx context.Context, key string) (string, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var rec string
	err := db.conn.QueryRowContext(ctx, `
		SELECT recommendation FROM recommendation_cache WHERE goal_key = ?
	`, key).Scan(&rec)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache lookup: %w", err)
	}
	return rec, true, nil
}

// PutRecommendation stores a recommendation under a goal key, replacing any
// previous entry.
func (db *DB) PutRecommendation(ctx context.Context, key, recommendation string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO recommendation_cache (goal_key, recommendation, created_at)
		VALUES (?, ?, ?)
	`, key, recommendation, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
