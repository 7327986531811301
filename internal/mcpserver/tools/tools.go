// Package tools implements the seven MCP tools: catalogue, schema, summary,
// listing, inline submission, file-based submission, and job status.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskmcp/mcp-task-server/internal/audit"
	"github.com/taskmcp/mcp-task-server/internal/correlation"
	"github.com/taskmcp/mcp-task-server/internal/jobs"
	"github.com/taskmcp/mcp-task-server/internal/metrics"
	"github.com/taskmcp/mcp-task-server/internal/ratelimit"
	"github.com/taskmcp/mcp-task-server/internal/store"
	"github.com/taskmcp/mcp-task-server/internal/validate"
)

// Result is the structured outcome of a tool invocation: a JSON-encoded
// payload string plus the isError flag the MCP tool result envelope needs.
type Result struct {
	Payload string
	IsError bool
}

// Code enumerates the stable, client-facing error codes a tool result can
// carry. Messages may vary; codes never do.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeRateLimit  Code = "RATE_LIMIT_EXCEEDED"
)

type errorPayload struct {
	Error             string `json:"error"`
	Code              Code   `json:"code"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func errResult(code Code, message string, retryAfterSeconds int) Result {
	b, _ := json.Marshal(errorPayload{Error: message, Code: code, RetryAfterSeconds: retryAfterSeconds})
	return Result{Payload: string(b), IsError: true}
}

func okResult(v interface{}) Result {
	b, err := json.Marshal(v)
	if err != nil {
		return errResult(CodeInternal, "failed to encode result", 0)
	}
	return Result{Payload: string(b)}
}

// Handler is the signature every tool implements once arguments are already
// schema-validated JSON.
type Handler func(ctx context.Context, rawArgs json.RawMessage) Result

// Registry owns the seven tools and the invocation protocol (§4.2) wrapping
// each one: correlation scope, audit start/success/failure, rate limiting,
// domain validation, then the handler itself.
type Registry struct {
	store    store.TaskStore
	jobs     *jobs.Registry
	limiter  *ratelimit.Limiter
	auditLog *audit.Logger
	importer *FileImporter
	metrics  *metrics.Collector

	resourceMaxTasks int
}

// NewRegistry builds the tool registry. metrics may be nil.
func NewRegistry(taskStore store.TaskStore, jobRegistry *jobs.Registry, limiter *ratelimit.Limiter, auditLog *audit.Logger, importer *FileImporter, resourceMaxTasks int, collector *metrics.Collector) *Registry {
	return &Registry{
		store:            taskStore,
		jobs:             jobRegistry,
		limiter:          limiter,
		auditLog:         auditLog,
		importer:         importer,
		metrics:          collector,
		resourceMaxTasks: resourceMaxTasks,
	}
}

// Names lists the seven tool names in catalogue order.
func (r *Registry) Names() []string {
	return []string{
		"mcp-help", "mcp-schema-tasks", "mcp-tasks-summary", "mcp-tasks-list",
		"mcp-tasks", "mcp-tasks-from-file", "mcp-job-status",
	}
}

// Invoke runs the named tool through the full invocation protocol. name must
// be one of Names(); an unknown name is a programmer error in the caller
// (the RPC dispatcher's tools/call handler), not a client-facing condition.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage) Result {
	ctx, corrID := correlation.New(ctx)

	r.emit(ctx, "TOOL_INVOCATION_START", audit.CategoryTool, name, true, "")

	if r.limiter != nil {
		allowed, _, nanosToRefill := r.limiter.Allow(name)
		if !allowed {
			retryAfter := int((nanosToRefill + time.Second.Nanoseconds() - 1) / time.Second.Nanoseconds())
			r.emit(ctx, "RATE_LIMIT_EXCEEDED", audit.CategoryTool, name, false, "rate limit exceeded")
			if r.metrics != nil {
				r.metrics.RateLimited(name)
			}
			return errResult(CodeRateLimit,
				fmt.Sprintf("Rate limit exceeded for tool: %s. Please retry in %d seconds.", name, retryAfter),
				retryAfter)
		}
	}

	h, ok := r.handlers()[name]
	if !ok {
		r.emit(ctx, "TOOL_INVOCATION_FAILURE", audit.CategoryTool, name, false, "unknown tool")
		if r.metrics != nil {
			r.metrics.ToolInvoked(name, false)
		}
		return errResult(CodeInternal, "unknown tool", 0)
	}

	result := h(ctx, rawArgs)
	if result.IsError {
		r.emit(ctx, "TOOL_INVOCATION_FAILURE", audit.CategoryTool, name, false, result.Payload)
	} else {
		r.emit(ctx, "TOOL_INVOCATION_SUCCESS", audit.CategoryTool, name, true, "")
	}
	if r.metrics != nil {
		r.metrics.ToolInvoked(name, !result.IsError)
	}
	_ = corrID
	return result
}

func (r *Registry) handlers() map[string]Handler {
	return map[string]Handler{
		"mcp-help":            r.help,
		"mcp-schema-tasks":    r.schemaTasks,
		"mcp-tasks-summary":   r.tasksSummary,
		"mcp-tasks-list":      r.tasksList,
		"mcp-tasks":           r.submitTasks,
		"mcp-tasks-from-file": r.submitTasksFromFile,
		"mcp-job-status":      r.jobStatus,
	}
}

func (r *Registry) emit(ctx context.Context, eventType string, category audit.Category, toolName string, success bool, errMsg string) {
	if r.auditLog == nil {
		return
	}
	r.auditLog.Emit(audit.Event{
		EventType:     audit.EventType(eventType),
		Category:      category,
		Description:   fmt.Sprintf("tool invocation: %s", toolName),
		Timestamp:     time.Now(),
		CorrelationID: correlation.FromContext(ctx),
		ToolName:      toolName,
		Success:       success,
		ErrorMessage:  errMsg,
	})
}

func (r *Registry) help(ctx context.Context, _ json.RawMessage) Result {
	return okResult(map[string]interface{}{
		"tools": r.Names(),
		"suggestedWorkflow": []string{
			"mcp-schema-tasks", "mcp-tasks", "mcp-job-status", "mcp-tasks-list", "mcp-tasks-summary",
		},
	})
}
