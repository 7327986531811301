// Package httpsse implements the HTTP+SSE transport: MCP Streamable-HTTP at
// a single /mcp endpoint, the X-API-Key security gate, the fixed security
// response headers, and the Server-Sent Events stream used for server-push
// notifications.
package httpsse

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskmcp/mcp-task-server/internal/pubsub"
	"github.com/taskmcp/mcp-task-server/internal/rpc"
)

// sessionHeader carries the server-assigned SSE session id. The client
// receives it on the initial GET response and must echo it back on DELETE
// to tear down that specific subscription.
const sessionHeader = "Mcp-Session-Id"

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	Name string
	Key  string
}

// Config controls the HTTP+SSE transport.
type Config struct {
	Port                     int
	APIKeys                  []APIKeyConfig
	DisableAuth              bool
	CORSEnabled              bool
	CORSAllowedOrigins       []string
	HeartbeatIntervalSeconds int
	ConnectionTimeoutMinutes int
	MaxConnections           int
}

// Server is the echo-based HTTP+SSE transport.
type Server struct {
	cfg        Config
	dispatcher *rpc.Dispatcher
	hub        *pubsub.Hub
	metricsReg *prometheus.Registry
	echo       *echo.Echo

	sessionsMu sync.Mutex
	sessions   map[string]func()
}

// New builds the HTTP+SSE transport server and registers its routes.
// metricsReg may be nil, in which case /metrics is not registered.
func New(cfg Config, dispatcher *rpc.Dispatcher, hub *pubsub.Hub, metricsReg *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{cfg: cfg, dispatcher: dispatcher, hub: hub, metricsReg: metricsReg, echo: e, sessions: make(map[string]func())}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/mcp/health", s.handleHealth)
	if s.metricsReg != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{})))
	}

	mcpGroup := s.echo.Group("/mcp", s.securityHeaders, s.authGate)
	mcpGroup.POST("", s.handlePost)
	mcpGroup.GET("", s.handleSSE)
	mcpGroup.DELETE("", s.handleDelete)

	if s.cfg.CORSEnabled {
		corsConfig := middleware.CORSConfig{AllowOrigins: s.cfg.CORSAllowedOrigins}
		if len(s.cfg.CORSAllowedOrigins) == 0 {
			corsConfig.AllowOrigins = []string{"*"}
		} else {
			corsConfig.AllowCredentials = true
		}
		s.echo.Use(middleware.CORSWithConfig(corsConfig))
	}
}

// Start runs the HTTP server and blocks until ctx is canceled, then performs
// a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// registerSession records a session's unsubscribe func so a later DELETE can
// find it.
func (s *Server) registerSession(id string, unsubscribe func()) {
	s.sessionsMu.Lock()
	s.sessions[id] = unsubscribe
	s.sessionsMu.Unlock()
}

// endSession tears down a session on stream exit, whether the client
// disconnected, the connection timed out, or DELETE already ran. unsubscribe
// is idempotent, so a DELETE that ran first is a harmless no-op here.
func (s *Server) endSession(id string, unsubscribe func()) {
	s.sessionsMu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
	if ok {
		unsubscribe()
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "UP", "transport": "http"})
}

// securityHeaders sets the five fixed response headers on every /mcp*
// response reached through this middleware. It is scoped to the /mcp group
// only (exact path and /mcp/ prefix), never matched by suffix, so
// /mcp/evil/health cannot piggyback on a looser rule.
func (s *Server) securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		return next(c)
	}
}

// authGate enforces the X-API-Key header, compared in constant time against
// every configured key. Non-conformance always yields the JSON-RPC
// -32001 envelope with id null, never a bare HTTP status.
func (s *Server) authGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.DisableAuth {
			return next(c)
		}

		key := c.Request().Header.Get("X-API-Key")
		if key == "" {
			c.Response().Header().Set("WWW-Authenticate", "ApiKey")
			return c.JSON(http.StatusUnauthorized, rpc.NewError(nil, rpc.CodeAuthFailure, "Missing API key"))
		}
		if !s.keyMatches(key) {
			c.Response().Header().Set("WWW-Authenticate", "ApiKey")
			return c.JSON(http.StatusUnauthorized, rpc.NewError(nil, rpc.CodeAuthFailure, "Invalid API key"))
		}
		return next(c)
	}
}

// keyMatches compares candidate against every configured key in constant
// time. The candidate itself is never logged, only a short digest, so a
// rejected key never reaches the audit log verbatim.
func (s *Server) keyMatches(candidate string) bool {
	for _, entry := range s.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(entry.Key)) == 1 {
			return true
		}
	}
	return false
}

// digest returns a short, irreversible fingerprint of a key for logging.
func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum[:4])
}

func (s *Server) handlePost(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, rpc.NewError(nil, rpc.CodeParseError, "failed to read request body"))
	}

	resp := s.dispatcher.Dispatch(c.Request().Context(), body)
	if resp == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

// handleDelete terminates the calling client's SSE subscription, identified
// by the session id it was handed on connect. An unknown or missing id is
// not an error the client can act on differently: both still yield 204,
// since the end state the caller wants (no active session) already holds.
func (s *Server) handleDelete(c echo.Context) error {
	id := c.Request().Header.Get(sessionHeader)
	if id != "" {
		s.sessionsMu.Lock()
		unsubscribe, ok := s.sessions[id]
		delete(s.sessions, id)
		s.sessionsMu.Unlock()
		if ok {
			unsubscribe()
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSSE(c echo.Context) error {
	if s.hub.SubscriberCount() >= s.cfg.MaxConnections {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "too many concurrent SSE connections"})
	}

	sessionID := uuid.NewString()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionHeader, sessionID)
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := s.hub.Subscribe()
	s.registerSession(sessionID, unsubscribe)
	defer s.endSession(sessionID, unsubscribe)

	fmt.Fprintf(w, "event: connected\ndata: {\"sessionId\":%q}\n\n", sessionID)
	w.Flush()

	heartbeat := time.NewTicker(time.Duration(s.cfg.HeartbeatIntervalSeconds) * time.Second)
	defer heartbeat.Stop()

	timeout := time.NewTimer(time.Duration(s.cfg.ConnectionTimeoutMinutes) * time.Minute)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeout.C:
			return nil
		case <-heartbeat.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {}\n\n")
			w.Flush()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			name := msg.Name
			if !strings.HasPrefix(name, "job-") && name != "resources/listChanged" {
				name = "message"
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Name, msg.Data)
			w.Flush()
		}
	}
}
