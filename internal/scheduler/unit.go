package scheduler

import (
	"context"

	"github.com/conclave-labs/conclave/pkg/models"
)

// Context is the prior knowledge handed to a deliberation unit.
type Context struct {
	// Text is the partial-context blob built from dependency progress
	// (speculative mode).
	Text string
	// Memory maps participant ID to concatenated prior positions from
	// completed batches (batch mode).
	Memory map[string]string
}

// Unit executes one work item's deliberation. Implementations make their
// outbound provider calls through circuit breakers; the scheduler itself
// never wraps a unit in a breaker — a unit error is simply that item's
// failure for aggregation purposes.
type Unit interface {
	// Execute runs the full deliberation for one item. onEvent receives the
	// unit's lifecycle events in order; it may be nil.
	Execute(ctx context.Context, item *models.WorkItem, dctx Context, onEvent func(UnitEvent)) (*models.WorkResult, error)

	// RoundBudget returns the maximum deliberation rounds for an item,
	// derived from its complexity hint.
	RoundBudget(item *models.WorkItem) int
}
