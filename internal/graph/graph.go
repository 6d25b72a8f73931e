// Package graph provides a dependency graph for deliberation scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/conclave-labs/conclave/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found among work items.
var ErrCycleDetected = errors.New("circular dependency detected")

// CycleError reports which item IDs could not be placed into a batch.
// It never guesses a specific faulting edge; it exposes every stuck node.
type CycleError struct {
	// StuckIDs are the item IDs left over after no further zero-in-degree
	// removal was possible, sorted for stable output.
	StuckIDs []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected among items %v", e.StuckIDs)
}

// Is lets errors.Is(err, ErrCycleDetected) match a *CycleError.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// DependencyGraph represents a directed acyclic graph of work item
// dependencies. Items are nodes, and edges represent "builds on" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps item ID to the work item itself.
	nodes map[string]*models.WorkItem
	// edges maps item ID to the in-set IDs it depends on. Dependency IDs
	// referencing items outside the set are dropped at build time.
	edges map[string][]string
	// order preserves the insertion order of item IDs.
	order []string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.WorkItem),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build registers all work items and their in-set dependency edges.
// Dependency IDs that reference unknown items are ignored, not an error;
// cycle detection is deferred to Batches so stuck IDs can be reported.
func (g *DependencyGraph) Build(items []*models.WorkItem) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d items", len(items))

	// First pass: register all items as nodes.
	for _, item := range items {
		if _, exists := g.nodes[item.ID]; !exists {
			g.order = append(g.order, item.ID)
		}
		g.nodes[item.ID] = item
		g.edges[item.ID] = nil
	}

	// Second pass: build edges, counting only in-set dependencies.
	for _, item := range items {
		for _, depID := range item.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				g.debugLog("[graph.Build] item %s: dropping dangling dependency %s", item.ID, depID)
				continue
			}
			g.edges[item.ID] = append(g.edges[item.ID], depID)
		}
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
}

// Batches returns execution batches via repeated removal of all
// zero-in-degree nodes (Kahn's algorithm). Every dependency of an ID in
// batch k appears in some batch before k, and the union of all batches is
// every ID exactly once. Returns a *CycleError naming the stuck IDs if
// nodes remain after no further removal is possible.
func (g *DependencyGraph) Batches() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) == 0 {
		return nil, nil
	}

	// Count unresolved in-set dependencies per node.
	remaining := make(map[string]int, len(g.nodes))
	for id, deps := range g.edges {
		remaining[id] = len(deps)
	}

	placed := make(map[string]bool, len(g.nodes))
	var batches [][]string

	for len(placed) < len(g.nodes) {
		var batch []string
		for _, id := range g.order {
			if placed[id] {
				continue
			}
			if remaining[id] == 0 {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			// No removable node left: everything unplaced is stuck in a cycle.
			var stuck []string
			for _, id := range g.order {
				if !placed[id] {
					stuck = append(stuck, id)
				}
			}
			sort.Strings(stuck)
			g.debugLog("[graph.Batches] cycle detected, stuck items: %v", stuck)
			return nil, &CycleError{StuckIDs: stuck}
		}

		for _, id := range batch {
			placed[id] = true
		}
		// Release the dependents of everything placed this round.
		for id, deps := range g.edges {
			if placed[id] {
				continue
			}
			for _, depID := range deps {
				for _, done := range batch {
					if depID == done {
						remaining[id]--
					}
				}
			}
		}

		batches = append(batches, batch)
	}

	g.debugLog("[graph.Batches] produced %d batches", len(batches))
	return batches, nil
}

// SequentialBatches returns a trivial one-item-per-batch schedule in
// insertion order. Used as the fallback when Batches reports a cycle.
func (g *DependencyGraph) SequentialBatches() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	batches := make([][]string, 0, len(g.order))
	for _, id := range g.order {
		batches = append(batches, []string{id})
	}
	return batches
}

// HasEdges returns true if at least one in-set dependency edge exists.
func (g *DependencyGraph) HasEdges() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, deps := range g.edges {
		if len(deps) > 0 {
			return true
		}
	}
	return false
}

// GetItem returns the work item for a given ID, or nil if not found.
func (g *DependencyGraph) GetItem(id string) *models.WorkItem {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of work items in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Order returns item IDs in insertion order.
func (g *DependencyGraph) Order() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// GetDependencies returns the in-set IDs the given item depends on.
func (g *DependencyGraph) GetDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// GetDependents returns the IDs of items that depend on the given item.
func (g *DependencyGraph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, candidate := range g.order {
		for _, depID := range g.edges[candidate] {
			if depID == id {
				dependents = append(dependents, candidate)
				break
			}
		}
	}
	return dependents
}
