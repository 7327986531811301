package tools

import (
	"context"
	"encoding/json"
	"time"
)

type summaryResult struct {
	Todo            int        `json:"todo"`
	InProgress      int        `json:"inProgress"`
	Done            int        `json:"done"`
	TotalCount      int        `json:"totalCount"`
	EarliestDueDate *time.Time `json:"earliestDueDate,omitempty"`
	LatestDueDate   *time.Time `json:"latestDueDate,omitempty"`
	GeneratedAt     time.Time  `json:"generatedAt"`
}

func (r *Registry) tasksSummary(ctx context.Context, _ json.RawMessage) Result {
	counts, err := r.store.CountTasksByStatus(ctx)
	if err != nil {
		return errResult(CodeInternal, "failed to summarize tasks", 0)
	}
	earliest, err := r.store.FindEarliestDueDate(ctx)
	if err != nil {
		return errResult(CodeInternal, "failed to summarize tasks", 0)
	}
	latest, err := r.store.FindLatestDueDate(ctx)
	if err != nil {
		return errResult(CodeInternal, "failed to summarize tasks", 0)
	}

	return okResult(summaryResult{
		Todo:            counts.Todo,
		InProgress:      counts.InProgress,
		Done:            counts.Done,
		TotalCount:      counts.Total(),
		EarliestDueDate: earliest,
		LatestDueDate:   latest,
		GeneratedAt:     time.Now(),
	})
}
