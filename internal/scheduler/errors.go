package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// UnitFailure records one work item's failure.
type UnitFailure struct {
	// ItemID is the failed work item.
	ItemID string
	// Err is the underlying error from the deliberation unit.
	Err error
}

// Error implements the error interface.
func (f *UnitFailure) Error() string {
	return fmt.Sprintf("item %s: %v", f.ItemID, f.Err)
}

// Unwrap returns the underlying error.
func (f *UnitFailure) Unwrap() error {
	return f.Err
}

// AggregateError lists every failed work item with its underlying error.
// It is raised only after all items in a batch or wave have settled;
// siblings are never aborted early.
type AggregateError struct {
	// Failures holds one entry per failed item, sorted by item ID.
	Failures []*UnitFailure
}

// NewAggregateError builds an aggregate error with stable ordering.
func NewAggregateError(failures []*UnitFailure) *AggregateError {
	sorted := make([]*UnitFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ItemID < sorted[j].ItemID
	})
	return &AggregateError{Failures: sorted}
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d work item(s) failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, " [%s]", f.Error())
	}
	return b.String()
}

// FailedIDs returns the failed item IDs in sorted order.
func (e *AggregateError) FailedIDs() []string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ItemID
	}
	return ids
}
