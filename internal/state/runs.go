package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	// RunStatusRunning means the schedule is still executing.
	RunStatusRunning = "running"
	// RunStatusCompleted means every item succeeded.
	RunStatusCompleted = "completed"
	// RunStatusFailed means at least one item failed.
	RunStatusFailed = "failed"
)

// Run is one recorded schedule execution.
type Run struct {
	ID            string
	Mode          string
	Status        string
	Items         int
	Succeeded     int
	Failed        int
	Cost          float64
	Contributions int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// NewRunID generates a short run identifier.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// CreateRun records the start of a schedule execution.
func (db *DB) CreateRun(id, mode string, items int) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, mode, status, items, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, mode, RunStatusRunning, items, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records a schedule's final status and aggregate totals.
func (db *DB) FinishRun(id, status string, succeeded, failed int, cost float64, contributions int) error {
	_, err := db.Exec(`
		UPDATE runs
		SET status = ?, succeeded = ?, failed = ?, cost = ?, contributions = ?, completed_at = ?
		WHERE id = ?
	`, status, succeeded, failed, cost, contributions, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, mode, status, items, succeeded, failed, cost, contributions, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT id, mode, status, items, succeeded, failed, cost, contributions, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var startedAt string
	var completedAt sql.NullString

	err := s.Scan(&run.ID, &run.Mode, &run.Status, &run.Items, &run.Succeeded,
		&run.Failed, &run.Cost, &run.Contributions, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = t
	run.CompletedAt = parseNullableTime(completedAt)
	return &run, nil
}
