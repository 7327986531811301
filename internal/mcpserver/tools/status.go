package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskmcp/mcp-task-server/internal/store"
)

type jobStatusArgs struct {
	JobID string `json:"jobId"`
}

type jobStatusResult struct {
	JobID           string          `json:"jobId"`
	Status          store.JobStatus `json:"status"`
	TotalTasks      int             `json:"totalTasks"`
	ProcessedTasks  int             `json:"processedTasks"`
	ProgressPercent *int            `json:"progressPercent,omitempty"`
	DurationMs      *int64          `json:"durationMs,omitempty"`
	TasksPerSecond  *float64        `json:"tasksPerSecond,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

func (r *Registry) jobStatus(ctx context.Context, rawArgs json.RawMessage) Result {
	var args jobStatusArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil || args.JobID == "" {
		return errResult(CodeValidation, "jobId is required", 0)
	}

	job, err := r.jobs.Status(ctx, args.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errResult(CodeNotFound, "unknown jobId", 0)
		}
		return errResult(CodeInternal, "failed to load job status", 0)
	}

	result := jobStatusResult{
		JobID:          job.ID,
		Status:         job.Status,
		TotalTasks:     job.TotalTasks,
		ProcessedTasks: job.ProcessedTasks,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
		DurationMs:     job.DurationMs,
	}
	if job.TotalTasks > 0 {
		pct := job.ProcessedTasks * 100 / job.TotalTasks
		result.ProgressPercent = &pct
	}
	if job.DurationMs != nil && *job.DurationMs > 0 && job.ProcessedTasks > 0 {
		tps := float64(job.ProcessedTasks) * 1000 / float64(*job.DurationMs)
		result.TasksPerSecond = &tps
	}

	return okResult(result)
}
