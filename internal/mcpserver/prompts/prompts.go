// Package prompts implements the three server-defined MCP prompts. Every
// prompt is synchronous and deterministic given current store state, and
// never leaks an internal error cause to the caller.
package prompts

import (
	"context"
	"fmt"
	"time"

	"github.com/taskmcp/mcp-task-server/internal/audit"
	"github.com/taskmcp/mcp-task-server/internal/correlation"
	"github.com/taskmcp/mcp-task-server/internal/store"
)

// Message is the single USER-role message every prompt returns.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result wraps the message MCP's GetPromptResult expects.
type Result struct {
	Description string    `json:"description"`
	Messages    []Message `json:"messages"`
}

// Listing describes one prompt for prompts/list.
type Listing struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Provider serves the three prompts.
type Provider struct {
	store    store.TaskStore
	auditLog *audit.Logger
}

// NewProvider builds a Provider.
func NewProvider(taskStore store.TaskStore, auditLog *audit.Logger) *Provider {
	return &Provider{store: taskStore, auditLog: auditLog}
}

// List returns the fixed prompt catalogue.
func (p *Provider) List() []Listing {
	return []Listing{
		{Name: "create-tasks-from-description", Description: "Draft a JSON task array from a free-text description"},
		{Name: "summarize-tasks-by-status", Description: "Summarize current task counts, optionally focused on one status"},
		{Name: "task-report-template", Description: "Produce a brief or detailed task report"},
	}
}

// Get resolves name with args, returning a generic failure (with a
// PROMPT_GET_FAILURE audit event) on anything that goes wrong — callers
// never see why a prompt failed to render.
func (p *Provider) Get(ctx context.Context, name string, args map[string]string) (Result, error) {
	var (
		result Result
		err    error
	)

	switch name {
	case "create-tasks-from-description":
		result, err = p.createTasksFromDescription(args)
	case "summarize-tasks-by-status":
		result, err = p.summarizeTasksByStatus(ctx, args)
	case "task-report-template":
		result, err = p.taskReportTemplate(ctx, args)
	default:
		err = fmt.Errorf("unknown prompt: %s", name)
	}

	if err != nil {
		p.emitFailure(ctx, name, err)
		return Result{}, fmt.Errorf("failed to render prompt")
	}
	return result, nil
}

func (p *Provider) createTasksFromDescription(args map[string]string) (Result, error) {
	description := args["description"]
	if description == "" {
		return Result{}, fmt.Errorf("description is required")
	}
	content := fmt.Sprintf(
		"Break the following description into a JSON array of tasks, each with title, description, status, and an optional dueDate:\n\n%s",
		description,
	)
	return Result{Description: "Draft tasks from a description", Messages: []Message{{Role: "user", Content: content}}}, nil
}

func (p *Provider) summarizeTasksByStatus(ctx context.Context, args map[string]string) (Result, error) {
	counts, err := p.store.CountTasksByStatus(ctx)
	if err != nil {
		return Result{}, err
	}

	status := args["status"]
	var content string
	if status != "" {
		var count int
		switch store.TaskStatus(status) {
		case store.TaskTodo:
			count = counts.Todo
		case store.TaskInProgress:
			count = counts.InProgress
		case store.TaskDone:
			count = counts.Done
		default:
			return Result{}, fmt.Errorf("unknown status: %s", status)
		}
		content = fmt.Sprintf("There are %d tasks with status %s out of %d total. Summarize this for the user.", count, status, counts.Total())
	} else {
		content = fmt.Sprintf(
			"Task counts: %d TODO, %d IN_PROGRESS, %d DONE, %d total. Summarize this for the user.",
			counts.Todo, counts.InProgress, counts.Done, counts.Total(),
		)
	}
	return Result{Description: "Summarize task counts", Messages: []Message{{Role: "user", Content: content}}}, nil
}

func (p *Provider) taskReportTemplate(ctx context.Context, args map[string]string) (Result, error) {
	format := args["format"]
	if format == "" {
		format = "brief"
	}
	if format != "brief" && format != "detailed" {
		return Result{}, fmt.Errorf("unknown format: %s", format)
	}

	counts, err := p.store.CountTasksByStatus(ctx)
	if err != nil {
		return Result{}, err
	}

	var content string
	if format == "detailed" {
		content = fmt.Sprintf(
			"Write a detailed task report as of %s. Total tasks: %d (TODO: %d, IN_PROGRESS: %d, DONE: %d). Include a full breakdown by status and a recommendations section.",
			time.Now().Format(time.RFC3339), counts.Total(), counts.Todo, counts.InProgress, counts.Done,
		)
	} else {
		content = fmt.Sprintf("Write a brief task report as of %s. Total tasks: %d.", time.Now().Format(time.RFC3339), counts.Total())
	}
	return Result{Description: "Task report", Messages: []Message{{Role: "user", Content: content}}}, nil
}

func (p *Provider) emitFailure(ctx context.Context, name string, cause error) {
	if p.auditLog == nil {
		return
	}
	p.auditLog.Emit(audit.Event{
		EventType:     "PROMPT_GET_FAILURE",
		Category:      audit.CategoryPrompt,
		Description:   fmt.Sprintf("prompt get: %s", name),
		Timestamp:     time.Now(),
		CorrelationID: correlation.FromContext(ctx),
		Success:       false,
		ErrorMessage:  cause.Error(),
	})
}
