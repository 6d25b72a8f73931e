package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conclave-labs/conclave/pkg/models"
)

// SaveResult persists one work item's result under a run. Votes and
// participant summaries are stored as JSON.
func (db *DB) SaveResult(runID string, result *models.WorkResult) error {
	votes, err := json.Marshal(result.Votes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}
	summaries, err := json.Marshal(result.Summaries)
	if err != nil {
		return fmt.Errorf("marshal summaries: %w", err)
	}

	_, err = db.Exec(`
		INSERT OR REPLACE INTO results
		(run_id, item_id, goal, synthesis, recommendation, votes, contributions, cost, duration_ms, summaries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, result.ItemID, result.Goal, result.Synthesis, result.Recommendation,
		string(votes), result.Contributions, result.Cost, result.Duration.Milliseconds(),
		string(summaries), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save result %s: %w", result.ItemID, err)
	}
	return nil
}

// ResultsForRun returns every stored result for a run, in insertion order.
func (db *DB) ResultsForRun(runID string) ([]*models.WorkResult, error) {
	rows, err := db.Query(`
		SELECT item_id, goal, synthesis, recommendation, votes, contributions, cost, duration_ms, summaries
		FROM results WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*models.WorkResult
	for rows.Next() {
		var r models.WorkResult
		var votes, summaries sql.NullString
		var durationMS int64

		err := rows.Scan(&r.ItemID, &r.Goal, &r.Synthesis, &r.Recommendation,
			&votes, &r.Contributions, &r.Cost, &durationMS, &summaries)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond

		if votes.Valid && votes.String != "" && votes.String != "null" {
			if err := json.Unmarshal([]byte(votes.String), &r.Votes); err != nil {
				return nil, fmt.Errorf("unmarshal votes for %s: %w", r.ItemID, err)
			}
		}
		if summaries.Valid && summaries.String != "" && summaries.String != "null" {
			if err := json.Unmarshal([]byte(summaries.String), &r.Summaries); err != nil {
				return nil, fmt.Errorf("unmarshal summaries for %s: %w", r.ItemID, err)
			}
		}
		for _, s := range r.Summaries {
			r.ParticipantIDs = append(r.ParticipantIDs, s.ParticipantID)
		}

		results = append(results, &r)
	}
	return results, rows.Err()
}
