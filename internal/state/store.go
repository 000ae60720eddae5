// Package state persists pipeline run history in a local SQLite database,
// separate from the staging database the runs operate on.
package state

import "time"

// RunKind identifies which pipeline step a run executed.
type RunKind string

const (
	RunKindLoad    RunKind = "load"
	RunKindCurate  RunKind = "curate"
	RunKindMetrics RunKind = "metrics"
	RunKindUpload  RunKind = "upload"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded execution of a pipeline step.
type Run struct {
	ID          string
	Kind        RunKind
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// DatasetLoad is the per-dataset outcome of a load run.
type DatasetLoad struct {
	RunID    string
	Dataset  string
	Files    int
	Inserted int
	Updated  int
	Skipped  int
	Rejected int
}

// Store is the interface for run-history persistence.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(kind RunKind, env string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordDatasetLoad(dl *DatasetLoad) error
	ListDatasetLoads(runID string) ([]*DatasetLoad, error)
}
