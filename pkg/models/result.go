package models

import "time"

// ParticipantSummary captures one panel member's final position.
type ParticipantSummary struct {
	// ParticipantID is the unique identifier of the panel member.
	ParticipantID string `json:"participant_id"`
	// Persona is the role the participant argued from.
	Persona string `json:"persona"`
	// Position is the participant's final stated position.
	Position string `json:"position"`
}

// WorkResult is the outcome of one completed deliberation.
type WorkResult struct {
	// ItemID is the ID of the work item this result belongs to.
	ItemID string `json:"item_id"`
	// Goal echoes the work item's goal.
	Goal string `json:"goal"`
	// Synthesis is the full synthesized answer.
	Synthesis string `json:"synthesis"`
	// Recommendation is a cheap distillation of the synthesis, used by
	// dependent items instead of the full text. May be empty.
	Recommendation string `json:"recommendation,omitempty"`
	// Votes maps a recommendation option to the number of votes it received.
	Votes map[string]int `json:"votes,omitempty"`
	// Contributions is the number of individual contributions made.
	Contributions int `json:"contributions"`
	// Cost is the estimated USD cost of all provider calls for this item.
	Cost float64 `json:"cost"`
	// Duration is the wall-clock time the deliberation took.
	Duration time.Duration `json:"duration"`
	// ParticipantIDs lists the panel members that took part.
	ParticipantIDs []string `json:"participant_ids,omitempty"`
	// Summaries holds each participant's final position.
	Summaries []ParticipantSummary `json:"summaries,omitempty"`
}

// ContextSnippet returns the text dependents should consume: the distilled
// recommendation when present, the full synthesis otherwise.
func (r *WorkResult) ContextSnippet() string {
	if r.Recommendation != "" {
		return r.Recommendation
	}
	return r.Synthesis
}
