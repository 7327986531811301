package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmcp/mcp-task-server/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndFindTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveTask(ctx, store.NewTask{Title: "write tests", Status: store.TaskTodo})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	found, err := s.FindTaskByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "write tests", found.Title)
	assert.Equal(t, store.TaskTodo, found.Status)
}

func TestFindTaskByID_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FindTaskByID(context.Background(), 99999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInsertTasksChunked_AllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tasks := make([]store.NewTask, 120)
	for i := range tasks {
		tasks[i] = store.NewTask{Title: "bulk", Status: store.TaskTodo}
	}

	var chunkCalls []int
	err := s.InsertTasksChunked(ctx, tasks, 50, func(inserted int) {
		chunkCalls = append(chunkCalls, inserted)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100, 120}, chunkCalls)

	all, err := s.FindAllTasks(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 120)
}

func TestInsertTasksChunked_ProgressNeverCalledOnFailure(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := make([]store.NewTask, 120)
	for i := range tasks {
		tasks[i] = store.NewTask{Title: "bulk", Status: store.TaskTodo}
	}

	var chunkCalls []int
	err := s.InsertTasksChunked(ctx, tasks, 50, func(inserted int) {
		chunkCalls = append(chunkCalls, inserted)
	})
	require.Error(t, err)
	assert.Empty(t, chunkCalls, "progress must not be reported for a batch that never committed")

	all, ferr := s.FindAllTasks(context.Background(), 1000)
	require.NoError(t, ferr)
	assert.Empty(t, all)
}

func TestFindTasksByStatus_PagedAndFiltered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.SaveTask(ctx, store.NewTask{Title: "todo task", Status: store.TaskTodo})
		require.NoError(t, err)
	}
	_, err := s.SaveTask(ctx, store.NewTask{Title: "done task", Status: store.TaskDone})
	require.NoError(t, err)

	page, total, err := s.FindTasksByStatus(ctx, store.TaskTodo, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 3)

	page2, total2, err := s.FindTasksByStatus(ctx, store.TaskTodo, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total2)
	assert.Len(t, page2, 2)
}

func TestCountTasksByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.SaveTask(ctx, store.NewTask{Title: "a", Status: store.TaskTodo})
	require.NoError(t, err)
	_, err = s.SaveTask(ctx, store.NewTask{Title: "b", Status: store.TaskDone})
	require.NoError(t, err)

	counts, err := s.CountTasksByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Todo)
	assert.Equal(t, 1, counts.Done)
	assert.Equal(t, 2, counts.Total())
}

func TestSaveAndFindJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := store.BatchJob{ID: "job-1", Status: store.JobPending, TotalTasks: 10}
	require.NoError(t, s.SaveJob(ctx, job))

	found, err := s.FindJobByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.JobPending, found.Status)

	job.Status = store.JobRunning
	require.NoError(t, s.SaveJob(ctx, job))
	found, err = s.FindJobByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.JobRunning, found.Status)
}

func TestFindJobsByStatusIn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveJob(ctx, store.BatchJob{ID: "p1", Status: store.JobPending, TotalTasks: 1}))
	require.NoError(t, s.SaveJob(ctx, store.BatchJob{ID: "r1", Status: store.JobRunning, TotalTasks: 1}))
	require.NoError(t, s.SaveJob(ctx, store.BatchJob{ID: "c1", Status: store.JobCompleted, TotalTasks: 1}))

	jobs, err := s.FindJobsByStatusIn(ctx, []store.JobStatus{store.JobPending, store.JobRunning})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
