package models

import "time"

// ScheduleMode selects how a set of work items is executed.
type ScheduleMode string

const (
	// ModeBatch runs items in dependency-ordered batches, each batch fully
	// concurrent, joined at batch boundaries.
	ModeBatch ScheduleMode = "batch"
	// ModeSpeculative starts every item at once and lets dependents proceed
	// on partial dependency progress.
	ModeSpeculative ScheduleMode = "speculative"
)

// Valid returns true if the mode is a known value.
func (m ScheduleMode) Valid() bool {
	return m == ModeBatch || m == ModeSpeculative
}

// ScheduleConfig holds per-schedule execution settings.
type ScheduleConfig struct {
	// Mode selects batch or speculative execution.
	Mode ScheduleMode `json:"mode"`
	// EarlyStartRounds is the round count a dependency must reach before
	// dependents may begin (speculative mode only).
	EarlyStartRounds int `json:"early_start_rounds"`
	// MaxWait bounds how long a dependent waits for its dependencies to
	// become ready (speculative mode only).
	MaxWait time.Duration `json:"max_wait"`
	// FailOnWaitTimeout controls what happens when MaxWait elapses before
	// all dependencies are ready. False (the default) continues with
	// whatever partial context is available; true fails the waiting item.
	FailOnWaitTimeout bool `json:"fail_on_wait_timeout"`
}

// DefaultScheduleConfig returns the default schedule settings.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Mode:             ModeBatch,
		EarlyStartRounds: 2,
		MaxWait:          120 * time.Second,
	}
}
