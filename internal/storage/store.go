package storage

import (
	"context"

	"evolva/internal/model"
)

// Store persists run summaries and per-generation statistics.
type Store interface {
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns the most recently started runs first. limit <= 0
	// returns every run.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveGenerationStats(ctx context.Context, runID string, stats []model.GenerationRecord) error
	GetGenerationStats(ctx context.Context, runID string) ([]model.GenerationRecord, bool, error)
}
