package store

import (
	"context"
	"time"

	"github.com/terralens/landcover-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Name   string          `json:"name,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// CompositeStats summarizes the persisted composite cache.
type CompositeStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Store defines the persistence interface for analysis runs and the
// composite cache. Run rows record request, status and failure metadata
// only; summaries and layers are returned to the caller and never stored.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.AOIRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FailRun(ctx context.Context, runID string, kind model.Kind, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Composite cache
	GetComposite(ctx context.Context, key string) ([]byte, error)
	SetComposite(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredComposites(ctx context.Context) (int, error)
	PurgeComposites(ctx context.Context) (int, error)
	CompositeStats(ctx context.Context) (CompositeStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
