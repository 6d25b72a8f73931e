// Package deliberate runs one work item's multi-round panel deliberation:
// positions each round, convergence checks, voting, synthesis, and a cheap
// recommendation distillation for dependents.
package deliberate

import (
	"strings"

	"github.com/conclave-labs/conclave/pkg/models"
)

// Round budgets for different complexity levels.
const (
	// RoundsLow is the budget for quick deliberations.
	RoundsLow = 2
	// RoundsMedium is the budget for standard deliberations.
	RoundsMedium = 4
	// RoundsHigh is the budget for deep deliberations.
	RoundsHigh = 6
)

// Keywords that indicate a goal needs only a short deliberation.
var lowKeywords = []string{
	"simple",
	"trivial",
	"quick",
	"yes or no",
	"sanity check",
}

// Keywords that indicate a goal needs a deep deliberation.
var highKeywords = []string{
	"architecture",
	"design",
	"trade-off",
	"tradeoff",
	"strategy",
	"complex",
}

// RoundBudget chooses the maximum deliberation rounds for an item based on
// keywords in its goal and its complexity hint:
//   - Low keywords (simple, trivial, quick, ...) -> RoundsLow
//   - High keywords (architecture, design, strategy, ...) -> RoundsHigh
//   - Otherwise -> the complexity hint's default
func RoundBudget(item *models.WorkItem) int {
	if item == nil {
		return RoundsMedium
	}

	text := strings.ToLower(item.Goal)

	for _, kw := range lowKeywords {
		if strings.Contains(text, kw) {
			return RoundsLow
		}
	}

	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return RoundsHigh
		}
	}

	return complexityDefault(item.Complexity)
}

// complexityDefault returns the round budget for a complexity hint.
func complexityDefault(c models.Complexity) int {
	switch c {
	case models.ComplexityLow:
		return RoundsLow
	case models.ComplexityHigh:
		return RoundsHigh
	default:
		return RoundsMedium
	}
}
