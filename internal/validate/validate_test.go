package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskmcp/mcp-task-server/internal/store"
)

func TestTask_RequiresTitleAndStatus(t *testing.T) {
	v := Task(store.NewTask{})
	assert.Len(t, v, 2)
}

func TestTask_RejectsUnknownStatus(t *testing.T) {
	v := Task(store.NewTask{Title: "x", Status: "BOGUS"})
	assert.Len(t, v, 1)
	assert.Equal(t, "status", v[0].Path)
}

func TestTask_RejectsOverlongTitle(t *testing.T) {
	v := Task(store.NewTask{Title: strings.Repeat("a", 256), Status: store.TaskTodo})
	assert.Len(t, v, 1)
}

func TestTaskBatch_RejectsEmpty(t *testing.T) {
	assert.Error(t, TaskBatch(nil))
}

func TestTaskBatch_RejectsOverMax(t *testing.T) {
	tasks := make([]store.NewTask, maxBatchSize+1)
	for i := range tasks {
		tasks[i] = store.NewTask{Title: "x", Status: store.TaskTodo}
	}
	assert.Error(t, TaskBatch(tasks))
}

func TestTaskBatch_ReportsOffendingIndex(t *testing.T) {
	tasks := []store.NewTask{
		{Title: "ok", Status: store.TaskTodo},
		{Title: "", Status: store.TaskTodo},
	}
	err := TaskBatch(tasks)
	assert.ErrorContains(t, err, "index 1")
}

func TestPagination_DefaultsAndClamps(t *testing.T) {
	page, size, clamped := Pagination(-1, 0)
	assert.Equal(t, 0, page)
	assert.Equal(t, defaultPageSize, size)
	assert.False(t, clamped)

	_, size, clamped = Pagination(0, 5000)
	assert.Equal(t, maxPageSize, size)
	assert.True(t, clamped)
}
