// Package state provides SQLite-based persistence for Conclave.
package state

import (
	"context"
	"io"

	"github.com/conclave-labs/conclave/pkg/models"
)

// RunStore handles run-related persistence operations.
type RunStore interface {
	CreateRun(id, mode string, items int) error
	FinishRun(id, status string, succeeded, failed int, cost float64, contributions int) error
	GetRun(id string) (*Run, error)
	RecentRuns(limit int) ([]*Run, error)
}

// ResultStore handles work-result persistence operations.
type ResultStore interface {
	SaveResult(runID string, result *models.WorkResult) error
	ResultsForRun(runID string) ([]*models.WorkResult, error)
}

// RecommendationStore is the recommendation cache backend.
type RecommendationStore interface {
	GetRecommendation(ctx context.Context, key string) (string, bool, error)
	PutRecommendation(ctx context.Context, key, recommendation string) error
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for schedule persistence. It lets the CLI
// work with any backend without depending on the concrete SQLite
// implementation.
type Store interface {
	RunStore
	ResultStore
	RecommendationStore
	Migrator
	io.Closer
}

// Compile-time check that DB satisfies Store.
var _ Store = (*DB)(nil)
