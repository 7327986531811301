package resources

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmcp/mcp-task-server/internal/pubsub"
	"github.com/taskmcp/mcp-task-server/internal/store"
	"github.com/taskmcp/mcp-task-server/internal/store/sqlite"
)

func newTestProvider(t *testing.T) (*Provider, *sqlite.Store, *pubsub.Hub) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "resources.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	hub := pubsub.New()
	return NewProvider(s, hub, nil, 1000), s, hub
}

func TestRead_TaskAll(t *testing.T) {
	p, s, _ := newTestProvider(t)
	_, err := s.SaveTask(context.Background(), store.NewTask{Title: "x", Status: store.TaskTodo})
	require.NoError(t, err)

	res, err := p.Read(context.Background(), "task://all")
	require.NoError(t, err)
	assert.Equal(t, "application/json", res.MimeType)
	assert.Contains(t, res.Text, "\"x\"")
}

func TestRead_TaskByID_NotFound(t *testing.T) {
	p, _, _ := newTestProvider(t)
	_, err := p.Read(context.Background(), "task://999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead_UnknownURI(t *testing.T) {
	p, _, _ := newTestProvider(t)
	_, err := p.Read(context.Background(), "bogus://nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotifyJobTerminal_BroadcastsOnlyOnCompleted(t *testing.T) {
	p, _, hub := newTestProvider(t)
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	p.NotifyJobTerminal(store.BatchJob{Status: store.JobFailed})
	p.NotifyJobTerminal(store.BatchJob{Status: store.JobCompleted})

	msg := <-ch
	assert.Equal(t, "resources/listChanged", msg.Name)
	assert.Len(t, ch, 0)
}
