package scheduler

import "time"

// EventType represents the type of scheduler event.
type EventType string

const (
	// EventBatchStarted indicates a batch has started execution.
	EventBatchStarted EventType = "batch_started"
	// EventBatchCompleted indicates a batch settled, with success/fail counts.
	EventBatchCompleted EventType = "batch_completed"
	// EventItemStarted indicates a work item's deliberation has started.
	EventItemStarted EventType = "item_started"
	// EventItemCompleted indicates a work item completed successfully.
	EventItemCompleted EventType = "item_completed"
	// EventItemFailed indicates a work item failed.
	EventItemFailed EventType = "item_failed"
	// EventItemWaiting indicates a speculative item is waiting on its
	// dependencies' partial progress.
	EventItemWaiting EventType = "item_waiting"
	// EventScheduleCompleted indicates the entire schedule settled, with
	// aggregate cost/contribution totals and ordered result IDs.
	EventScheduleCompleted EventType = "schedule_completed"

	// Forwarded deliberation unit lifecycle events.

	// EventRoundStarted indicates a deliberation round began.
	EventRoundStarted EventType = "round_started"
	// EventRoundCompleted indicates a deliberation round finished with a summary.
	EventRoundCompleted EventType = "round_completed"
	// EventContribution indicates a participant contributed a position.
	EventContribution EventType = "contribution"
	// EventConvergenceChecked indicates a convergence check ran.
	EventConvergenceChecked EventType = "convergence_checked"
	// EventVotingStarted indicates the voting phase began.
	EventVotingStarted EventType = "voting_started"
)

// Event represents a structured event emitted by the scheduler. Per-item
// event order is preserved; events from different items interleave.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// ItemID is the ID of the related work item, if applicable.
	ItemID string
	// BatchIndex is the zero-based batch number (batch mode only).
	BatchIndex int
	// Round is the deliberation round for unit lifecycle events.
	Round int
	// ParticipantID identifies the contributor for contribution events.
	ParticipantID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Succeeded is the success count for batch/schedule completion events.
	Succeeded int
	// Failed is the failure count for batch/schedule completion events.
	Failed int
	// Cost is the aggregate cost so far (completion events).
	Cost float64
	// Contributions is the aggregate contribution count (completion events).
	Contributions int
	// ResultIDs lists result item IDs in original submission order
	// (schedule completion only).
	ResultIDs []string
}

// UnitEvent is a lifecycle event emitted by a running deliberation unit.
// The scheduler forwards these to its event stream and, in speculative
// mode, uses round completions to publish partial context.
type UnitEvent struct {
	// Type is the lifecycle event type (round/contribution/convergence/voting).
	Type EventType
	// ItemID is the work item this unit is executing.
	ItemID string
	// Round is the deliberation round, 1-based.
	Round int
	// ParticipantID identifies the contributor, if applicable.
	ParticipantID string
	// Summary is the round summary for round completion events.
	Summary string
	// Message provides additional context.
	Message string
}
