package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskmcp/mcp-task-server/internal/store"
	"github.com/taskmcp/mcp-task-server/internal/validate"
	"github.com/taskmcp/mcp-task-server/internal/workerpool"
)

type taskInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      store.TaskStatus `json:"status"`
	DueDate     *string          `json:"dueDate"`
}

type submitArgs struct {
	Tasks []taskInput `json:"tasks"`
}

type submitResult struct {
	JobID      string         `json:"jobId"`
	Status     store.JobStatus `json:"status"`
	TotalTasks int            `json:"totalTasks"`
}

func toNewTasks(inputs []taskInput) ([]store.NewTask, error) {
	tasks := make([]store.NewTask, len(inputs))
	for i, in := range inputs {
		var due *time.Time
		if in.DueDate != nil && *in.DueDate != "" {
			parsed, err := time.Parse("2006-01-02", *in.DueDate)
			if err != nil {
				return nil, fmt.Errorf("task at index %d has an invalid dueDate", i)
			}
			due = &parsed
		}
		tasks[i] = store.NewTask{Title: in.Title, Description: in.Description, Status: in.Status, DueDate: due}
	}
	return tasks, nil
}

func (r *Registry) submitTasks(ctx context.Context, rawArgs json.RawMessage) Result {
	var args submitArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errResult(CodeValidation, "invalid arguments", 0)
	}
	return r.submit(ctx, args.Tasks)
}

func (r *Registry) submit(ctx context.Context, inputs []taskInput) Result {
	tasks, err := toNewTasks(inputs)
	if err != nil {
		return errResult(CodeValidation, err.Error(), 0)
	}
	if err := validate.TaskBatch(tasks); err != nil {
		return errResult(CodeValidation, err.Error(), 0)
	}

	job, err := r.jobs.Submit(ctx, tasks, nil)
	if err != nil {
		if errors.Is(err, workerpool.ErrQueueFull) {
			return errResult(CodeInternal, "server busy, retry later", 0)
		}
		return errResult(CodeInternal, "failed to submit job", 0)
	}

	return okResult(submitResult{JobID: job.ID, Status: job.Status, TotalTasks: job.TotalTasks})
}
