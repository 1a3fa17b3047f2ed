// Package store persists the ledger of extract runs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cpm-tools/corvil-extract/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Market string          `json:"market,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// CreateRun records a new running extraction and assigns its id.
	CreateRun(ctx context.Context, run model.ExtractRun) (*model.ExtractRun, error)
	CompleteRun(ctx context.Context, runID string, artifacts []string) error
	FailRun(ctx context.Context, runID, kind, message string) error
	GetRun(ctx context.Context, runID string) (*model.ExtractRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ExtractRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
