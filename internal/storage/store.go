package storage

import (
	"context"

	"phylon/internal/model"
)

// Store defines the persistence operations for runs and their history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, most recently started first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveEpochs(ctx context.Context, runID string, epochs []model.EpochRecord) error
	GetEpochs(ctx context.Context, runID string) ([]model.EpochRecord, bool, error)
	SaveFront(ctx context.Context, runID string, front []model.FrontMember) error
	GetFront(ctx context.Context, runID string) ([]model.FrontMember, bool, error)
}
