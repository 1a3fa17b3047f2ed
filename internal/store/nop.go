package store

import (
	"context"

	"github.com/cpm-tools/corvil-extract/internal/model"
)

// Nop is a Store that records nothing. It backs store.driver "none".
type Nop struct{}

func (Nop) CreateRun(_ context.Context, run model.ExtractRun) (*model.ExtractRun, error) {
	run.Status = model.RunStatusRunning
	return &run, nil
}

func (Nop) CompleteRun(context.Context, string, []string) error   { return nil }
func (Nop) FailRun(context.Context, string, string, string) error { return nil }
func (Nop) Migrate(context.Context) error                         { return nil }
func (Nop) Close() error                                          { return nil }
func (Nop) GetRun(context.Context, string) (*model.ExtractRun, error) {
	return nil, ErrNotFound
}

func (Nop) ListRuns(context.Context, RunFilter) ([]model.ExtractRun, error) {
	return nil, nil
}
