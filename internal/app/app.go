// Package app composes the object graph once at process startup and runs
// whichever transport(s) the configured mode selects.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/taskmcp/mcp-task-server/internal/audit"
	"github.com/taskmcp/mcp-task-server/internal/config"
	"github.com/taskmcp/mcp-task-server/internal/jobs"
	"github.com/taskmcp/mcp-task-server/internal/logging"
	"github.com/taskmcp/mcp-task-server/internal/mcpserver/prompts"
	"github.com/taskmcp/mcp-task-server/internal/mcpserver/resources"
	"github.com/taskmcp/mcp-task-server/internal/mcpserver/tools"
	"github.com/taskmcp/mcp-task-server/internal/metrics"
	"github.com/taskmcp/mcp-task-server/internal/pubsub"
	"github.com/taskmcp/mcp-task-server/internal/ratelimit"
	"github.com/taskmcp/mcp-task-server/internal/rpc"
	"github.com/taskmcp/mcp-task-server/internal/store/sqlite"
	"github.com/taskmcp/mcp-task-server/internal/telemetry"
	"github.com/taskmcp/mcp-task-server/internal/transport/httpsse"
	"github.com/taskmcp/mcp-task-server/internal/transport/stdio"
	"github.com/taskmcp/mcp-task-server/internal/workerpool"
)

const (
	serverName      = "mcp-task-server"
	serverVersion   = "1.0.0"
	protocolVersion = "2025-06-18"
	insertChunkSize = 50
)

// App owns every long-lived component wired up from Config.
type App struct {
	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	store   *sqlite.Store
	pool    *workerpool.Pool
	auditLg *audit.Logger
	metrics *metrics.Collector

	jobRegistry    *jobs.Registry
	toolRegistry   *tools.Registry
	resourceProv   *resources.Provider
	promptProv     *prompts.Provider
	dispatcher     *rpc.Dispatcher
	hub            *pubsub.Hub
}

// New builds the full object graph from cfg. It does not start any
// transport; call Run for that.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logCfg := logging.NewDefaultConfig()
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.ServiceName != "" {
		telCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.Endpoint != "" {
		telCfg.Endpoint = cfg.Telemetry.Endpoint
	}
	telCfg.Insecure = cfg.Telemetry.Insecure
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	taskStore, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	auditCategories := audit.CategoriesFromNames(cfg.Audit.EnabledCategories)
	auditLg, err := audit.NewLogger(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		Categories:  auditCategories,
		MaxValueLen: cfg.Audit.SensitiveDataMaxLength,
		Strategy:    cfg.Audit.SensitiveDataStrategy,
		LogPath:     cfg.Audit.LogPath,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init audit logger: %w", err)
	}

	metricsCollector := metrics.New()

	pool := workerpool.New(cfg.Async.CorePoolSize, cfg.Async.MaxPoolSize, cfg.Async.QueueCapacity)
	jobRegistry := jobs.New(taskStore, pool, auditLg, insertChunkSize, metricsCollector)

	hub := pubsub.New()
	resourceProv := resources.NewProvider(taskStore, hub, auditLg, cfg.Resource.MaxTasks)
	jobRegistry.OnTerminal(resourceProv.NotifyJobTerminal)

	limiter := buildLimiter(cfg)
	importer, err := tools.NewFileImporter()
	if err != nil {
		return nil, fmt.Errorf("app: init file importer: %w", err)
	}
	toolRegistry := tools.NewRegistry(taskStore, jobRegistry, limiter, auditLg, importer, cfg.Resource.MaxTasks, metricsCollector)
	promptProv := prompts.NewProvider(taskStore, auditLg)

	dispatcher := rpc.NewDispatcher()

	app := &App{
		cfg:          cfg,
		logger:       logger,
		tel:          tel,
		store:        taskStore,
		pool:         pool,
		auditLg:      auditLg,
		metrics:      metricsCollector,
		jobRegistry:  jobRegistry,
		toolRegistry: toolRegistry,
		resourceProv: resourceProv,
		promptProv:   promptProv,
		dispatcher:   dispatcher,
		hub:          hub,
	}
	app.registerMethods()
	return app, nil
}

func minutesToDuration(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func buildLimiter(cfg *config.Config) *ratelimit.Limiter {
	def := ratelimit.Bucket{
		Capacity:       cfg.RateLimit.Capacity,
		RefillTokens:   cfg.RateLimit.Tokens,
		RefillInterval: minutesToDuration(cfg.RateLimit.RefillMinutes),
	}
	overrides := make(map[string]ratelimit.Bucket, len(cfg.RateLimit.Tools))
	for name, t := range cfg.RateLimit.Tools {
		overrides[name] = ratelimit.Bucket{
			Capacity:       t.Capacity,
			RefillTokens:   t.Tokens,
			RefillInterval: minutesToDuration(t.RefillMinutes),
		}
	}
	return ratelimit.New(def, overrides)
}

// RecoverOrphans runs the startup orphan-job recovery sequence. It must
// complete before any new job is accepted.
func (a *App) RecoverOrphans(ctx context.Context) error {
	return a.jobRegistry.RecoverOrphans(ctx)
}

// Close releases every owned resource.
func (a *App) Close(ctx context.Context) {
	a.pool.Shutdown(a.cfg.Async.TerminationSeconds)
	_ = a.auditLg.Close()
	_ = a.store.Close()
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
	_ = a.logger
}

// RunStdio blocks serving the STDIO transport until ctx is canceled.
func (a *App) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s := stdio.New(a.dispatcher, in, out)
	return s.Run(ctx)
}

// RunHTTP blocks serving the HTTP+SSE transport until ctx is canceled.
func (a *App) RunHTTP(ctx context.Context) error {
	httpCfg := httpsse.Config{
		Port:                     a.cfg.Transport.HTTP.Port,
		DisableAuth:              a.cfg.Transport.HTTP.Security.DisableAuth,
		CORSEnabled:              a.cfg.Transport.HTTP.CORSEnabled,
		CORSAllowedOrigins:       a.cfg.Transport.HTTP.CORSAllowedOrigins,
		HeartbeatIntervalSeconds: a.cfg.Transport.HTTP.SSE.HeartbeatIntervalSeconds,
		ConnectionTimeoutMinutes: a.cfg.Transport.HTTP.SSE.ConnectionTimeoutMinutes,
		MaxConnections:           a.cfg.Transport.HTTP.SSE.MaxConnections,
	}
	for _, entry := range a.cfg.Transport.HTTP.Security.APIKeys {
		httpCfg.APIKeys = append(httpCfg.APIKeys, httpsse.APIKeyConfig{Name: entry.Name, Key: entry.Key.Value()})
	}

	server := httpsse.New(httpCfg, a.dispatcher, a.hub, a.metrics.Registry())
	return server.Start(ctx)
}

func (a *App) registerMethods() {
	a.dispatcher.Register("initialize", a.handleInitialize)
	a.dispatcher.Register("tools/list", a.handleToolsList)
	a.dispatcher.Register("tools/call", a.handleToolsCall)
	a.dispatcher.Register("resources/list", a.handleResourcesList)
	a.dispatcher.Register("resources/read", a.handleResourcesRead)
	a.dispatcher.Register("resources/templates/list", a.handleResourceTemplatesList)
	a.dispatcher.Register("prompts/list", a.handlePromptsList)
	a.dispatcher.Register("prompts/get", a.handlePromptsGet)
	a.dispatcher.Register("notifications/initialized", a.handleInitializedNotification)
}

func (a *App) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"serverInfo":      map[string]string{"name": serverName, "version": serverVersion},
		"capabilities": map[string]interface{}{
			"tools":        map[string]bool{"listChanged": true},
			"resources":    map[string]bool{"subscribe": false, "listChanged": true},
			"prompts":      map[string]bool{"listChanged": false},
			"logging":      map[string]interface{}{},
			"experimental": map[string]string{"asyncBatch": "1.0.0"},
		},
	}, nil
}

func (a *App) handleToolsList(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	return map[string]interface{}{"tools": a.toolRegistry.Catalog()}, nil
}

func (a *App) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "invalid tools/call params"}
	}

	result := a.toolRegistry.Invoke(ctx, req.Name, req.Arguments)
	return map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": result.Payload}},
		"isError": result.IsError,
	}, nil
}

func (a *App) handleResourcesList(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	return map[string]interface{}{"resources": a.resourceProv.List()}, nil
}

// handleResourceTemplatesList answers resources/templates/list. This server
// has no parameterised resource templates: task://{id} is served directly
// via resources/read, not expanded from a URI template, so the list is
// always empty.
func (a *App) handleResourceTemplatesList(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	return map[string]interface{}{"resourceTemplates": []struct{}{}}, nil
}

func (a *App) handleResourcesRead(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "invalid resources/read params"}
	}
	res, err := a.resourceProv.Read(ctx, req.URI)
	if err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInternalError, Message: "resource not found"}
	}
	return map[string]interface{}{"contents": []resources.Resource{res}}, nil
}

func (a *App) handlePromptsList(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	return map[string]interface{}{"prompts": a.promptProv.List()}, nil
}

// handleInitializedNotification acknowledges the client's post-initialize
// lifecycle notification. It is always sent without an id, so the dispatcher
// never writes a response for it regardless of what is returned here.
func (a *App) handleInitializedNotification(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	return nil, nil
}

func (a *App) handlePromptsGet(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
	var req struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "invalid prompts/get params"}
	}
	result, err := a.promptProv.Get(ctx, req.Name, req.Arguments)
	if err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInternalError, Message: "failed to render prompt"}
	}
	return result, nil
}
