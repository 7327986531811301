package store

import (
	"context"
	"time"
)

// TaskStore is the collaborator contract for task persistence. The core
// MCP server logic depends only on this interface; internal/store/sqlite
// is the bundled implementation, but any type satisfying TaskStore can
// replace it without touching core logic (e.g. a Postgres adapter backed
// by a separately-migrated schema).
type TaskStore interface {
	SaveTask(ctx context.Context, t NewTask) (Task, error)
	FindTaskByID(ctx context.Context, id int64) (Task, error)
	FindAllTasks(ctx context.Context, limit int) ([]Task, error)
	FindTasksByStatus(ctx context.Context, status TaskStatus, page, pageSize int) ([]Task, int, error)
	CountTasksByStatus(ctx context.Context) (StatusCounts, error)
	FindEarliestDueDate(ctx context.Context) (*time.Time, error)
	FindLatestDueDate(ctx context.Context) (*time.Time, error)

	// InsertTasksChunked persists a batch of new tasks in chunks of at most
	// chunkSize rows, inside a single transaction spanning the whole batch:
	// either every task lands, or (on error) none does. progress is invoked
	// after each chunk commits with the running total of inserted rows, for
	// callers that want sub-job visibility; it is never required to be
	// called and its errors are ignored.
	InsertTasksChunked(ctx context.Context, tasks []NewTask, chunkSize int, progress func(inserted int)) error

	JobStore
}

// JobStore is the batch-job half of the persistence contract, split out so
// the job registry can depend on it independently of task persistence.
type JobStore interface {
	SaveJob(ctx context.Context, job BatchJob) error
	FindJobByID(ctx context.Context, id string) (BatchJob, error)
	FindJobsByStatusIn(ctx context.Context, statuses []JobStatus) ([]BatchJob, error)
}
