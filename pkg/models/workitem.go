package models

// Complexity is a hint about how involved a work item's deliberation is
// expected to be. It only affects the downstream round budget; scheduling
// ignores it entirely.
type Complexity string

const (
	// ComplexityLow indicates a quick deliberation with few rounds.
	ComplexityLow Complexity = "low"
	// ComplexityMedium indicates a standard deliberation.
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh indicates a deep deliberation with extra rounds.
	ComplexityHigh Complexity = "high"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	default:
		return false
	}
}

// WorkItem represents one schedulable deliberation.
type WorkItem struct {
	// ID is the unique identifier for this item within a schedule.
	ID string `json:"id" yaml:"id"`
	// Goal is the opaque question or objective handed to the deliberation unit.
	Goal string `json:"goal" yaml:"goal"`
	// DependsOn lists item IDs whose output this item builds on.
	// IDs that reference items outside the schedule are ignored.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Complexity hints at the round budget for this item.
	Complexity Complexity `json:"complexity,omitempty" yaml:"complexity,omitempty"`
}
