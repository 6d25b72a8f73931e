package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conclave-labs/conclave/pkg/models"
)

// Plan is a YAML schedule definition: a set of work items plus optional
// execution overrides.
type Plan struct {
	// Mode optionally overrides the configured schedule mode.
	Mode string `yaml:"mode,omitempty"`
	// Items are the deliberations to schedule.
	Items []*models.WorkItem `yaml:"items"`
}

// loadPlan reads and validates a plan file.
func loadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if err := validatePlan(&plan); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &plan, nil
}

// validatePlan checks structural requirements: at least one item, unique
// non-empty ids, non-empty goals, and known complexity hints. Dangling
// depends_on references are allowed; the scheduler ignores them.
func validatePlan(plan *Plan) error {
	if plan.Mode != "" && plan.Mode != "batch" && plan.Mode != "speculative" {
		return fmt.Errorf("unknown mode %q: must be batch or speculative", plan.Mode)
	}

	if len(plan.Items) == 0 {
		return fmt.Errorf("plan has no items")
	}

	seen := make(map[string]bool, len(plan.Items))
	for i, item := range plan.Items {
		if item.ID == "" {
			return fmt.Errorf("item %d has no id", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate item id %q", item.ID)
		}
		seen[item.ID] = true

		if item.Goal == "" {
			return fmt.Errorf("item %q has no goal", item.ID)
		}
		if item.Complexity != "" && !item.Complexity.Valid() {
			return fmt.Errorf("item %q has unknown complexity %q", item.ID, item.Complexity)
		}
		for _, dep := range item.DependsOn {
			if dep == item.ID {
				return fmt.Errorf("item %q depends on itself", item.ID)
			}
		}
	}
	return nil
}
