package model

import (
	"time"
)

// RunStatus represents the current state of an analysis run. Transitions
// are strictly forward; no state is revisited.
type RunStatus string

const (
	RunStatusQueued          RunStatus = "queued"
	RunStatusValidating      RunStatus = "validating"
	RunStatusFetchingImagery RunStatus = "fetching_imagery"
	RunStatusClassifying     RunStatus = "classifying"
	RunStatusVectorizing     RunStatus = "vectorizing"
	RunStatusAggregating     RunStatus = "aggregating"
	RunStatusDone            RunStatus = "done"
	RunStatusFailed          RunStatus = "failed"
)

// Run records the lifecycle of a single analysis request. Summaries and
// layers are intentionally absent: results are returned to the caller, not
// retained.
type Run struct {
	ID        string        `json:"id"`
	Request   AOIRequest    `json:"request"`
	Status    RunStatus     `json:"status"`
	ErrorKind Kind          `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Stages    []StageResult `json:"stages,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StageStatus represents the outcome of one pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// StageResult holds the outcome of one pipeline stage.
type StageResult struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// RunStage is a persisted stage record belonging to a run. It is created
// when the stage starts and completed with a StageResult when it ends.
type RunStage struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
}
