// Package resources implements the MCP resource provider: the static
// task://all and db://stats resources, the templated task://{id} resource,
// and the after-commit resources/listChanged broadcast.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskmcp/mcp-task-server/internal/audit"
	"github.com/taskmcp/mcp-task-server/internal/correlation"
	"github.com/taskmcp/mcp-task-server/internal/pubsub"
	"github.com/taskmcp/mcp-task-server/internal/store"
)

// Resource is one readable URI's content, as returned by Read.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Listing describes one resource for resources/list, without its content.
type Listing struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// ErrNotFound is returned by Read for an unrecognised or mismatched URI.
var ErrNotFound = errors.New("resources: not found")

// Provider serves the static and templated task resources.
type Provider struct {
	store    store.TaskStore
	hub      *pubsub.Hub
	auditLog *audit.Logger
	maxTasks int
}

// NewProvider builds a Provider. hub is used to broadcast
// resources/listChanged after a batch job commits.
func NewProvider(taskStore store.TaskStore, hub *pubsub.Hub, auditLog *audit.Logger, maxTasks int) *Provider {
	if maxTasks <= 0 {
		maxTasks = 1000
	}
	return &Provider{store: taskStore, hub: hub, auditLog: auditLog, maxTasks: maxTasks}
}

// List returns the fixed catalogue of static resources. The templated
// task://{id} resource is not listed — it is only reachable by constructing
// its URI directly, per the MCP resource-template convention.
func (p *Provider) List() []Listing {
	return []Listing{
		{URI: "task://all", Name: "All tasks", Description: "Bounded list of all tasks", MimeType: "application/json"},
		{URI: "db://stats", Name: "Database statistics", Description: "Aggregate task counts by status", MimeType: "application/json"},
	}
}

// Read resolves uri to its content, emitting the read lifecycle's audit
// events around the lookup.
func (p *Provider) Read(ctx context.Context, uri string) (Resource, error) {
	p.emit(ctx, "RESOURCE_READ_START", uri, true, "")

	res, err := p.read(ctx, uri)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.emit(ctx, "RESOURCE_NOT_FOUND", uri, false, err.Error())
		} else {
			p.emit(ctx, "RESOURCE_READ_FAILURE", uri, false, err.Error())
		}
		return Resource{}, err
	}

	p.emit(ctx, "RESOURCE_READ_SUCCESS", uri, true, "")
	return res, nil
}

func (p *Provider) read(ctx context.Context, uri string) (Resource, error) {
	switch {
	case uri == "task://all":
		tasks, err := p.store.FindAllTasks(ctx, p.maxTasks)
		if err != nil {
			return Resource{}, fmt.Errorf("resources: find all tasks: %w", err)
		}
		return encode(uri, tasks)

	case uri == "db://stats":
		counts, err := p.store.CountTasksByStatus(ctx)
		if err != nil {
			return Resource{}, fmt.Errorf("resources: count tasks: %w", err)
		}
		return encode(uri, struct {
			Todo       int `json:"todo"`
			InProgress int `json:"inProgress"`
			Done       int `json:"done"`
			Total      int `json:"total"`
		}{counts.Todo, counts.InProgress, counts.Done, counts.Total()})

	case strings.HasPrefix(uri, "task://"):
		idStr := strings.TrimPrefix(uri, "task://")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return Resource{}, ErrNotFound
		}
		task, err := p.store.FindTaskByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Resource{}, ErrNotFound
			}
			return Resource{}, fmt.Errorf("resources: find task: %w", err)
		}
		return encode(uri, task)

	default:
		return Resource{}, ErrNotFound
	}
}

// NotifyJobTerminal is registered as a jobs.Listener; on a successfully
// completed job it broadcasts resources/listChanged to every attached SSE
// session. Failed jobs never changed the task list, so they broadcast
// nothing.
func (p *Provider) NotifyJobTerminal(job store.BatchJob) {
	if job.Status != store.JobCompleted || p.hub == nil {
		return
	}
	p.hub.Publish(pubsub.Message{Name: "resources/listChanged", Data: `{"method":"notifications/resources/list_changed"}`})
}

func (p *Provider) emit(ctx context.Context, eventType, uri string, success bool, errMsg string) {
	if p.auditLog == nil {
		return
	}
	p.auditLog.Emit(audit.Event{
		EventType:     audit.EventType(eventType),
		Category:      audit.CategoryResource,
		Description:   fmt.Sprintf("resource read: %s", uri),
		Timestamp:     time.Now(),
		CorrelationID: correlation.FromContext(ctx),
		Metadata:      map[string]string{"uri": uri},
		Success:       success,
		ErrorMessage:  errMsg,
	})
}

func encode(uri string, v interface{}) (Resource, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Resource{}, fmt.Errorf("resources: encode %s: %w", uri, err)
	}
	return Resource{URI: uri, MimeType: "application/json", Text: string(b)}, nil
}
