// Package jobs implements the batch job registry and lifecycle: creation,
// submission to the worker pool, and the PENDING -> RUNNING -> {COMPLETED,
// FAILED} state machine the engine enforces on every job.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskmcp/mcp-task-server/internal/audit"
	"github.com/taskmcp/mcp-task-server/internal/correlation"
	"github.com/taskmcp/mcp-task-server/internal/metrics"
	"github.com/taskmcp/mcp-task-server/internal/store"
	"github.com/taskmcp/mcp-task-server/internal/workerpool"
)

// ProgressFunc is invoked with 0 when a job starts and 100 when it finishes.
// No intermediate values are promised; callers must treat any other value as
// a best-effort sample, never a guarantee.
type ProgressFunc func(percent int)

// Listener is notified after a job reaches a terminal state, once the state
// change has been committed to the store. Delivery is best-effort: a failing
// or slow Listener never blocks or fails the job itself.
type Listener func(job store.BatchJob)

// Registry owns the batch job lifecycle. It is the single writer of job
// status transitions — callers never mutate a BatchJob's Status directly.
type Registry struct {
	jobStore  store.JobStore
	taskStore store.TaskStore
	pool      *workerpool.Pool
	auditLog  *audit.Logger
	metrics   *metrics.Collector
	chunkSize int

	listeners []Listener
}

// New builds a Registry. collector may be nil.
func New(taskStore store.TaskStore, pool *workerpool.Pool, auditLog *audit.Logger, chunkSize int, collector *metrics.Collector) *Registry {
	return &Registry{
		jobStore:  taskStore,
		taskStore: taskStore,
		pool:      pool,
		auditLog:  auditLog,
		metrics:   collector,
		chunkSize: chunkSize,
	}
}

// OnTerminal registers a Listener fired after a job completes or fails.
func (r *Registry) OnTerminal(l Listener) {
	r.listeners = append(r.listeners, l)
}

// RecoverOrphans marks every job left in PENDING or RUNNING from a previous
// process as FAILED. It must run once at startup, before any new job is
// accepted, since a crashed process can never resume a job's worker.
func (r *Registry) RecoverOrphans(ctx context.Context) error {
	orphans, err := r.jobStore.FindJobsByStatusIn(ctx, []store.JobStatus{store.JobPending, store.JobRunning})
	if err != nil {
		return fmt.Errorf("jobs: list orphans: %w", err)
	}
	now := time.Now()
	for _, job := range orphans {
		job.Status = store.JobFailed
		job.ErrorMessage = "Server restarted during processing"
		job.UpdatedAt = now
		job.CompletedAt = &now
		if err := r.jobStore.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("jobs: fail orphan %s: %w", job.ID, err)
		}
	}
	return nil
}

// Submit creates a job for totalTasks, hands the work to the worker pool,
// and returns the created job. If the pool rejects the submission (queue
// full), the job is immediately moved to FAILED and the returned error is
// non-nil — the caller must surface INTERNAL_ERROR to the client, not retry
// internally.
func (r *Registry) Submit(ctx context.Context, tasks []store.NewTask, progress ProgressFunc) (store.BatchJob, error) {
	job := store.BatchJob{
		ID:         uuid.NewString(),
		Status:     store.JobPending,
		TotalTasks: len(tasks),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := r.jobStore.SaveJob(ctx, job); err != nil {
		return store.BatchJob{}, fmt.Errorf("jobs: create: %w", err)
	}
	r.emitAudit(ctx, "BATCH_JOB_CREATED", audit.CategoryJob, job, true, "")

	corrID := correlation.FromContext(ctx)
	err := r.pool.Submit(func(workerCtx context.Context) {
		workerCtx = correlation.With(workerCtx, corrID)
		r.run(workerCtx, job.ID, tasks, progress)
	})
	if err != nil {
		job.Status = store.JobFailed
		job.ErrorMessage = "executor queue full"
		job.UpdatedAt = time.Now()
		completed := time.Now()
		job.CompletedAt = &completed
		if saveErr := r.jobStore.SaveJob(ctx, job); saveErr != nil {
			return store.BatchJob{}, fmt.Errorf("jobs: fail rejected job: %w", saveErr)
		}
		r.emitAudit(ctx, "BATCH_JOB_FAILED", audit.CategoryJob, job, false, job.ErrorMessage)
		if r.metrics != nil {
			r.metrics.JobQueueRejected()
		}
		return job, err
	}
	if r.metrics != nil {
		r.metrics.JobStarted()
	}
	return job, nil
}

// run executes one job's task insertion on the worker goroutine. It owns
// every subsequent transition of this job; nothing else writes to its row
// once run has started.
func (r *Registry) run(ctx context.Context, jobID string, tasks []store.NewTask, progress ProgressFunc) {
	job, err := r.jobStore.FindJobByID(ctx, jobID)
	if err != nil {
		return
	}

	start := time.Now()
	job.Status = store.JobRunning
	job.UpdatedAt = start
	if err := r.jobStore.SaveJob(ctx, job); err != nil {
		return
	}
	r.emitAudit(ctx, "BATCH_JOB_STARTED", audit.CategoryJob, job, true, "")
	if progress != nil {
		progress(0)
	}

	insertErr := r.taskStore.InsertTasksChunked(ctx, tasks, r.chunkSize, func(inserted int) {
		job.ProcessedTasks = inserted
		job.UpdatedAt = time.Now()
		_ = r.jobStore.SaveJob(ctx, job)
	})

	now := time.Now()
	durationMs := now.Sub(start).Milliseconds()
	job.UpdatedAt = now
	job.CompletedAt = &now
	job.DurationMs = &durationMs

	if insertErr != nil {
		job.Status = store.JobFailed
		job.ErrorMessage = "task insertion failed"
		_ = r.jobStore.SaveJob(ctx, job)
		r.emitAudit(ctx, "BATCH_JOB_FAILED", audit.CategoryJob, job, false, insertErr.Error())
		if r.metrics != nil {
			r.metrics.JobTerminal(string(job.Status))
		}
		r.notify(job)
		return
	}

	job.Status = store.JobCompleted
	job.ProcessedTasks = job.TotalTasks
	_ = r.jobStore.SaveJob(ctx, job)
	if progress != nil {
		progress(100)
	}
	r.emitAudit(ctx, "BATCH_JOB_COMPLETED", audit.CategoryJob, job, true, "")
	if r.metrics != nil {
		r.metrics.JobTerminal(string(job.Status))
	}
	r.notify(job)
}

// notify fans out the terminal state to every registered Listener. A
// listener is expected to log its own failures at debug level; Registry
// never surfaces them.
func (r *Registry) notify(job store.BatchJob) {
	for _, l := range r.listeners {
		l(job)
	}
}

// Status returns the current state of jobID.
func (r *Registry) Status(ctx context.Context, jobID string) (store.BatchJob, error) {
	return r.jobStore.FindJobByID(ctx, jobID)
}

func (r *Registry) emitAudit(ctx context.Context, eventType string, category audit.Category, job store.BatchJob, success bool, errMsg string) {
	if r.auditLog == nil {
		return
	}
	r.auditLog.Emit(audit.Event{
		EventType:     audit.EventType(eventType),
		Category:      category,
		Description:   fmt.Sprintf("batch job %s", job.ID),
		Timestamp:     time.Now(),
		CorrelationID: correlation.FromContext(ctx),
		Metadata:      map[string]string{"jobId": job.ID, "totalTasks": fmt.Sprint(job.TotalTasks)},
		Success:       success,
		ErrorMessage:  errMsg,
	})
}
