/*
store.go - Collaborator interfaces

PURPOSE:
  Defines the boundary between the generation engine and persistence.
  The engine only reads rosters, the compliance calendar and the relation
  table, and only writes task batches and run records.

KEY INTERFACES:
  ComplianceStore: Compliance calendar (firm types plus global types)
  RosterStore:     Clients and staff
  RelationStore:   Client -> default staff table
  TaskStore:       Bulk task creation and natural-key lookup
  RunLog:          Audit trail of generation runs
  Locker:          Serializes runs for the same firm and period

BULK CREATION:
  CreateBulkTasks carries no dedup key. Calling it twice with equivalent
  batches creates two sets of tasks. Whether an implementation is atomic is
  its own business; the engine neither retries nor rolls back.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - engine/store/memory.go: In-memory for tests and development
  - lock/: Locker implementations
*/
package engine

import (
	"context"
	"time"
)

type ComplianceStore interface {
	// ListComplianceTypes returns the firm's own types plus global ones.
	ListComplianceTypes(ctx context.Context, firmID FirmID) ([]ComplianceType, error)
}

type RosterStore interface {
	ListClients(ctx context.Context, firmID FirmID) ([]Client, error)

	// GetClients returns the requested clients in request order. Unknown IDs
	// yield ErrClientNotFound.
	GetClients(ctx context.Context, firmID FirmID, ids []ClientID) ([]Client, error)

	ListStaff(ctx context.Context, firmID FirmID) ([]Staff, error)
}

type RelationStore interface {
	GetClientStaffRelations(ctx context.Context, firmID FirmID) ([]ClientStaffRelation, error)
}

type TaskStore interface {
	// CreateBulkTasks persists a batch in one call.
	CreateBulkTasks(ctx context.Context, tasks []GeneratedTask) error

	// ExistingTaskKeys returns the natural keys of tasks already stored for
	// the firm and period key.
	ExistingTaskKeys(ctx context.Context, firmID FirmID, periodKey string) (map[string]bool, error)
}

// =============================================================================
// RUN LOG - Audit trail, separate from tasks
// =============================================================================

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// GenerationRun records one generation attempt that reached the collaborators.
type GenerationRun struct {
	ID          string
	FirmID      FirmID
	PeriodKey   string
	PeriodLabel string
	Code        string // pre-selected compliance code, empty for all types
	AssignedBy  string
	Total       int
	Defined     int
	Random      int
	Skipped     int
	Duplicates  int
	Status      RunStatus
	Error       string
	CreatedAt   time.Time
}

type RunLog interface {
	SaveRun(ctx context.Context, run GenerationRun) error
	ListRuns(ctx context.Context, firmID FirmID, limit int) ([]GenerationRun, error)
}

// =============================================================================
// LOCKER
// =============================================================================

// Locker guards a key for the duration of a run. Lock returns
// ErrGenerationInProgress if the key is already held.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
