// Package store defines the Task Store Adapter contract and the domain
// types it persists. The interface is the collaborator boundary named in
// the external interface contract; internal/store/sqlite provides the one
// concrete, swappable implementation bundled with this repository.
package store

import (
	"errors"
	"time"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

// ValidTaskStatus reports whether s is one of the three defined statuses.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	default:
		return false
	}
}

// Task is both the persisted row and the wire DTO exposed to MCP clients —
// there is no separate mapping layer between them.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTask is the subset of Task fields a client supplies when creating one.
type NewTask struct {
	Title       string
	Description string
	Status      TaskStatus
	DueDate     *time.Time
}

// JobStatus is the lifecycle state of a BatchJob. Transitions are one-way:
// PENDING -> RUNNING -> {COMPLETED, FAILED}, or PENDING -> FAILED directly
// on submission rejection. COMPLETED and FAILED are terminal.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobRunning    JobStatus = "RUNNING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether s is a terminal job status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// BatchJob tracks the lifecycle of one asynchronous task-insertion job.
type BatchJob struct {
	ID             string     `json:"id"`
	Status         JobStatus  `json:"status"`
	TotalTasks     int        `json:"totalTasks"`
	ProcessedTasks int        `json:"processedTasks"`
	DurationMs     *int64     `json:"durationMs,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// ErrNotFound is returned by FindByID-style lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// StatusCounts is the result of grouping tasks by status, used by the
// summary tool and by the task:// db stats resource.
type StatusCounts struct {
	Todo       int
	InProgress int
	Done       int
}

// Total returns the sum across all statuses.
func (c StatusCounts) Total() int {
	return c.Todo + c.InProgress + c.Done
}
