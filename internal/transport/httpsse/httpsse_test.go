package httpsse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmcp/mcp-task-server/internal/pubsub"
	"github.com/taskmcp/mcp-task-server/internal/rpc"
)

func newTestServer(cfg Config) *Server {
	d := rpc.NewDispatcher()
	d.Register("ping", func(ctx context.Context, params json.RawMessage) (interface{}, *rpc.Error) {
		return "pong", nil
	})
	return New(cfg, d, pubsub.New(), nil)
}

func TestHealth_Unauthenticated(t *testing.T) {
	s := newTestServer(Config{})
	req := httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPost_MissingAPIKey_Returns401(t *testing.T) {
	s := newTestServer(Config{APIKeys: []APIKeyConfig{{Name: "a", Key: "secret"}}})
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ApiKey", rec.Header().Get("WWW-Authenticate"))

	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeAuthFailure, resp.Error.Code)
	assert.Equal(t, "Missing API key", resp.Error.Message)
}

func TestPost_InvalidAPIKey_Returns401(t *testing.T) {
	s := newTestServer(Config{APIKeys: []APIKeyConfig{{Name: "a", Key: "secret"}}})
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPost_ValidAPIKey_DispatchesRequest(t *testing.T) {
	s := newTestServer(Config{APIKeys: []APIKeyConfig{{Name: "a", Key: "secret"}}})
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp", body)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}

func TestPost_DisableAuth_SkipsGate(t *testing.T) {
	s := newTestServer(Config{DisableAuth: true})
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/mcp", body)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders_SetOnMCPResponses(t *testing.T) {
	s := newTestServer(Config{DisableAuth: true})
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestSecurityHeaders_NotSetOnHealthEndpoint(t *testing.T) {
	s := newTestServer(Config{})
	req := httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("X-Frame-Options"))
}

func TestMetrics_ServedWhenRegistryProvided(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	d := rpc.NewDispatcher()
	s := New(Config{}, d, pubsub.New(), reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total")
}

func TestDelete_TearsDownMatchingSession(t *testing.T) {
	s := newTestServer(Config{DisableAuth: true, MaxConnections: 10})

	ch, unsubscribe := s.hub.Subscribe()
	s.registerSession("sess-1", unsubscribe)
	require.Equal(t, 1, s.hub.SubscriberCount())

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.hub.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok, "subscriber channel should be closed after teardown")
}

func TestDelete_UnknownSession_StillReturnsNoContent(t *testing.T) {
	s := newTestServer(Config{DisableAuth: true, MaxConnections: 10})

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionHeader, "does-not-exist")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetrics_NotRegisteredWhenNil(t *testing.T) {
	s := newTestServer(Config{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
