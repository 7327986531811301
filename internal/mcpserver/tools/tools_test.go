package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmcp/mcp-task-server/internal/jobs"
	"github.com/taskmcp/mcp-task-server/internal/ratelimit"
	"github.com/taskmcp/mcp-task-server/internal/store"
	"github.com/taskmcp/mcp-task-server/internal/store/sqlite"
	"github.com/taskmcp/mcp-task-server/internal/workerpool"
)

func newTestRegistry(t *testing.T) (*Registry, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	pool := workerpool.New(2, 2, 8)
	t.Cleanup(func() { pool.Shutdown(5) })
	jobRegistry := jobs.New(s, pool, nil, 50, nil)

	importer, err := NewFileImporter()
	require.NoError(t, err)

	return NewRegistry(s, jobRegistry, nil, nil, importer, 1000, nil), s
}

func TestCatalog_EveryToolHasDescriptionAndSchema(t *testing.T) {
	r, _ := newTestRegistry(t)
	catalog := r.Catalog()
	require.Len(t, catalog, len(r.Names()))
	for i, tool := range catalog {
		assert.Equal(t, r.Names()[i], tool.Name)
		assert.NotEmpty(t, tool.Description)
		require.NotNil(t, tool.InputSchema)
		assert.Equal(t, false, tool.InputSchema["additionalProperties"])
	}
}

func TestInvoke_Help(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := r.Invoke(context.Background(), "mcp-help", nil)
	assert.False(t, res.IsError)
}

func TestInvoke_SchemaTasks(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := r.Invoke(context.Background(), "mcp-schema-tasks", nil)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Payload, "additionalProperties")
}

func TestInvoke_SubmitThenJobStatus(t *testing.T) {
	r, _ := newTestRegistry(t)
	args, _ := json.Marshal(submitArgs{Tasks: []taskInput{{Title: "a", Status: store.TaskTodo}}})
	res := r.Invoke(context.Background(), "mcp-tasks", args)
	require.False(t, res.IsError)

	var submitted submitResult
	require.NoError(t, json.Unmarshal([]byte(res.Payload), &submitted))
	require.NotEmpty(t, submitted.JobID)

	deadline := time.Now().Add(2 * time.Second)
	var statusRes Result
	for time.Now().Before(deadline) {
		statusArgs, _ := json.Marshal(jobStatusArgs{JobID: submitted.JobID})
		statusRes = r.Invoke(context.Background(), "mcp-job-status", statusArgs)
		var js jobStatusResult
		require.NoError(t, json.Unmarshal([]byte(statusRes.Payload), &js))
		if js.Status == store.JobCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	var js jobStatusResult
	require.NoError(t, json.Unmarshal([]byte(statusRes.Payload), &js))
	assert.Equal(t, store.JobCompleted, js.Status)
	assert.NotNil(t, js.ProgressPercent)
	assert.Equal(t, 100, *js.ProgressPercent)
}

func TestInvoke_JobStatus_UnknownID(t *testing.T) {
	r, _ := newTestRegistry(t)
	args, _ := json.Marshal(jobStatusArgs{JobID: "does-not-exist"})
	res := r.Invoke(context.Background(), "mcp-job-status", args)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Payload, "NOT_FOUND")
}

func TestInvoke_RateLimitDenial(t *testing.T) {
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	pool := workerpool.New(1, 1, 4)
	t.Cleanup(func() { pool.Shutdown(5) })
	jobRegistry := jobs.New(s, pool, nil, 50, nil)
	importer, err := NewFileImporter()
	require.NoError(t, err)

	limiter := ratelimit.New(ratelimit.Bucket{Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour}, nil)
	r := NewRegistry(s, jobRegistry, limiter, nil, importer, 1000, nil)

	res1 := r.Invoke(context.Background(), "mcp-tasks-summary", nil)
	require.False(t, res1.IsError)

	res2 := r.Invoke(context.Background(), "mcp-tasks-summary", nil)
	require.True(t, res2.IsError)
	assert.Contains(t, res2.Payload, "RATE_LIMIT_EXCEEDED")
}

func TestFileImporter_RejectsNonJSONExtension(t *testing.T) {
	f, err := NewFileImporter()
	require.NoError(t, err)
	_, err = f.Read("/etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Only .json files are allowed")
}

func TestFileImporter_RejectsTraversalOutsideAllowedRoots(t *testing.T) {
	f, err := NewFileImporter()
	require.NoError(t, err)
	_, err = f.Read("../../../../x.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of allowed directories")
}

func TestFileImporter_ReportsIndexOfMalformedItem(t *testing.T) {
	f, err := NewFileImporter()
	require.NoError(t, err)

	path := filepath.Join(os.TempDir(), "tools_import_bad_item_test.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"title":"a","status":"TODO"},{"title":{"nested":true},"status":"TODO"}]`), 0o600))
	t.Cleanup(func() { os.Remove(path) })

	_, err = f.Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

func TestFileImporter_ReadsValidFile(t *testing.T) {
	f, err := NewFileImporter()
	require.NoError(t, err)

	path := filepath.Join(os.TempDir(), "tools_import_test.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"title":"a","status":"TODO"}]`), 0o600))
	t.Cleanup(func() { os.Remove(path) })

	items, err := f.Read(path)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
