package tools

import (
	"context"
	"encoding/json"

	"github.com/taskmcp/mcp-task-server/internal/store"
	"github.com/taskmcp/mcp-task-server/internal/validate"
)

type listArgs struct {
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Status   store.TaskStatus `json:"status,omitempty"`
}

type listResult struct {
	Tasks      []store.Task `json:"tasks"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

func (r *Registry) tasksList(ctx context.Context, rawArgs json.RawMessage) Result {
	var args listArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errResult(CodeValidation, "invalid arguments", 0)
		}
	}
	if args.Status != "" && !store.ValidTaskStatus(args.Status) {
		return errResult(CodeValidation, "status must be one of TODO, IN_PROGRESS, DONE", 0)
	}

	page, pageSize, _ := validate.Pagination(args.Page, args.PageSize)

	tasks, total, err := r.store.FindTasksByStatus(ctx, args.Status, page, pageSize)
	if err != nil {
		return errResult(CodeInternal, "failed to list tasks", 0)
	}

	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	return okResult(listResult{Tasks: tasks, Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages})
}
