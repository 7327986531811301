// Package validate holds the hand-written domain validators applied after
// JSON Schema validation: constraints a schema alone cannot express (cross
// field rules, numeric ranges with clamping, enum membership against a
// store-owned type), one explicit function per DTO rather than a generic
// reflection-based validator.
package validate

import (
	"fmt"

	"github.com/taskmcp/mcp-task-server/internal/store"
)

// FieldViolation names one invalid field and why.
type FieldViolation struct {
	Path    string
	Message string
}

const (
	maxTitleLen       = 255
	maxDescriptionLen = 2000
	maxBatchSize      = 5000
	defaultPageSize   = 100
	maxPageSize       = 1000
)

// Task validates a single NewTask, returning every violation found rather
// than stopping at the first.
func Task(t store.NewTask) []FieldViolation {
	var v []FieldViolation
	if t.Title == "" {
		v = append(v, FieldViolation{"title", "title is required"})
	} else if len(t.Title) > maxTitleLen {
		v = append(v, FieldViolation{"title", fmt.Sprintf("title must be at most %d characters", maxTitleLen)})
	}
	if len(t.Description) > maxDescriptionLen {
		v = append(v, FieldViolation{"description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLen)})
	}
	if t.Status == "" {
		v = append(v, FieldViolation{"status", "status is required"})
	} else if !store.ValidTaskStatus(t.Status) {
		v = append(v, FieldViolation{"status", fmt.Sprintf("status must be one of TODO, IN_PROGRESS, DONE, got %q", t.Status)})
	}
	return v
}

// TaskBatch validates a batch submission. It stops at the first invalid
// item, per the "rejects whole batch on first invalid item with index in
// message" contract, rather than accumulating violations across the batch.
func TaskBatch(tasks []store.NewTask) error {
	if len(tasks) == 0 {
		return fmt.Errorf("task batch must not be empty")
	}
	if len(tasks) > maxBatchSize {
		return fmt.Errorf("task batch exceeds maximum of %d items", maxBatchSize)
	}
	for i, t := range tasks {
		if violations := Task(t); len(violations) > 0 {
			return fmt.Errorf("task at index %d is invalid: %s", i, violations[0].Message)
		}
	}
	return nil
}

// Pagination validates and normalizes page/pageSize, clamping an
// out-of-range pageSize to the nearest bound instead of rejecting it.
func Pagination(page, pageSize int) (normalizedPage, normalizedPageSize int, clamped bool) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		return page, defaultPageSize, false
	}
	if pageSize > maxPageSize {
		return page, maxPageSize, true
	}
	return page, pageSize, false
}
