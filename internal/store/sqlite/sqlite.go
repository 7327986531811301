// Package sqlite is the bundled, swappable implementation of
// store.TaskStore backed by github.com/ncruces/go-sqlite3, a pure-Go SQLite
// driver requiring no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/taskmcp/mcp-task-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL,
	due_date TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS batch_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	total_tasks INTEGER NOT NULL,
	processed_tasks INTEGER NOT NULL,
	duration_ms INTEGER,
	error_message TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status);
`

// Store is a store.TaskStore backed by a single SQLite database file.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory if needed,
// applies the bootstrap schema idempotently, and returns a ready Store.
// This bootstrap is a convenience for running the bundled adapter, not the
// schema-migration tooling the task-management core intentionally leaves
// out of scope.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveTask(ctx context.Context, t store.NewTask) (store.Task, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, status, due_date, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, string(t.Status), formatDueDate(t.DueDate), formatTime(now), formatTime(now),
	)
	if err != nil {
		return store.Task{}, fmt.Errorf("sqlite: insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Task{}, fmt.Errorf("sqlite: last insert id: %w", err)
	}
	return store.Task{
		ID: id, Title: t.Title, Description: t.Description, Status: t.Status,
		DueDate: t.DueDate, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (s *Store) FindTaskByID(ctx context.Context, id int64) (store.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, due_date, created_at, updated_at FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return store.Task{}, store.ErrNotFound
	}
	if err != nil {
		return store.Task{}, fmt.Errorf("sqlite: find task %d: %w", id, err)
	}
	return t, nil
}

func (s *Store) FindAllTasks(ctx context.Context, limit int) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, status, due_date, created_at, updated_at FROM tasks ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find all tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) FindTasksByStatus(ctx context.Context, status store.TaskStatus, page, pageSize int) ([]store.Task, int, error) {
	var total int
	var err error
	var row *sql.Row
	if status == "" {
		row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = ?`, string(status))
	}
	if err = row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count tasks: %w", err)
	}

	offset := page * pageSize
	var rows *sql.Rows
	if status == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, title, description, status, due_date, created_at, updated_at FROM tasks ORDER BY id ASC LIMIT ? OFFSET ?`,
			pageSize, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, title, description, status, due_date, created_at, updated_at FROM tasks WHERE status = ? ORDER BY id ASC LIMIT ? OFFSET ?`,
			string(status), pageSize, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: find tasks by status: %w", err)
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (s *Store) CountTasksByStatus(ctx context.Context) (store.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return store.StatusCounts{}, fmt.Errorf("sqlite: count group by status: %w", err)
	}
	defer rows.Close()

	var counts store.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return store.StatusCounts{}, fmt.Errorf("sqlite: scan status count: %w", err)
		}
		switch store.TaskStatus(status) {
		case store.TaskTodo:
			counts.Todo = n
		case store.TaskInProgress:
			counts.InProgress = n
		case store.TaskDone:
			counts.Done = n
		}
	}
	return counts, rows.Err()
}

func (s *Store) FindEarliestDueDate(ctx context.Context) (*time.Time, error) {
	return s.findDueDate(ctx, "MIN")
}

func (s *Store) FindLatestDueDate(ctx context.Context) (*time.Time, error) {
	return s.findDueDate(ctx, "MAX")
}

func (s *Store) findDueDate(ctx context.Context, agg string) (*time.Time, error) {
	var raw sql.NullString
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s(due_date) FROM tasks WHERE due_date IS NOT NULL`, agg))
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("sqlite: %s due date: %w", agg, err)
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse due date: %w", err)
	}
	return &t, nil
}

// InsertTasksChunked inserts tasks in chunks of chunkSize rows inside a
// single transaction spanning the whole batch: a failure on any chunk
// rolls back the entire job, leaving no partial rows behind.
func (s *Store) InsertTasksChunked(ctx context.Context, tasks []store.NewTask, chunkSize int, progress func(inserted int)) error {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tasks (title, description, status, due_date, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare batch insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now().UTC())
	inserted := 0
	var checkpoints []int
	for i, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.Title, t.Description, string(t.Status), formatDueDate(t.DueDate), now, now); err != nil {
			return fmt.Errorf("sqlite: insert task at index %d: %w", i, err)
		}
		inserted++
		if inserted%chunkSize == 0 {
			checkpoints = append(checkpoints, inserted)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit batch insert: %w", err)
	}
	// Nothing is reported until the commit above succeeds: a caller that
	// persists progress on every call must never see a count for rows that
	// could still have been rolled back.
	if progress != nil {
		for _, c := range checkpoints {
			progress(c)
		}
		progress(inserted)
	}
	return nil
}

func (s *Store) SaveJob(ctx context.Context, job store.BatchJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, status, total_tasks, processed_tasks, duration_ms, error_message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_tasks = excluded.total_tasks,
			processed_tasks = excluded.processed_tasks,
			duration_ms = excluded.duration_ms,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`,
		job.ID, string(job.Status), job.TotalTasks, job.ProcessedTasks,
		nullableInt64(job.DurationMs), nullableString(job.ErrorMessage),
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt), nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) FindJobByID(ctx context.Context, id string) (store.BatchJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, total_tasks, processed_tasks, duration_ms, error_message, created_at, updated_at, completed_at
		FROM batch_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return store.BatchJob{}, store.ErrNotFound
	}
	if err != nil {
		return store.BatchJob{}, fmt.Errorf("sqlite: find job %s: %w", id, err)
	}
	return job, nil
}

func (s *Store) FindJobsByStatusIn(ctx context.Context, statuses []store.JobStatus) ([]store.BatchJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(statuses))
	query := `SELECT id, status, total_tasks, processed_tasks, duration_ms, error_message, created_at, updated_at, completed_at FROM batch_jobs WHERE status IN (`
	for i, st := range statuses {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = string(st)
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []store.BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (store.Task, error) {
	var t store.Task
	var description sql.NullString
	var dueDate sql.NullString
	var createdAt, updatedAt string
	var statusStr string
	if err := row.Scan(&t.ID, &t.Title, &description, &statusStr, &dueDate, &createdAt, &updatedAt); err != nil {
		return store.Task{}, err
	}
	t.Status = store.TaskStatus(statusStr)
	t.Description = description.String
	if dueDate.Valid {
		d, err := time.Parse(time.RFC3339, dueDate.String)
		if err != nil {
			return store.Task{}, fmt.Errorf("parse due_date: %w", err)
		}
		t.DueDate = &d
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return store.Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return store.Task{}, fmt.Errorf("parse updated_at: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = created, updated
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]store.Task, error) {
	tasks := make([]store.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanJob(row scanner) (store.BatchJob, error) {
	var j store.BatchJob
	var statusStr string
	var durationMs sql.NullInt64
	var errMsg sql.NullString
	var createdAt, updatedAt string
	var completedAt sql.NullString
	if err := row.Scan(&j.ID, &statusStr, &j.TotalTasks, &j.ProcessedTasks, &durationMs, &errMsg, &createdAt, &updatedAt, &completedAt); err != nil {
		return store.BatchJob{}, err
	}
	j.Status = store.JobStatus(statusStr)
	j.ErrorMessage = errMsg.String
	if durationMs.Valid {
		j.DurationMs = &durationMs.Int64
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return store.BatchJob{}, fmt.Errorf("parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return store.BatchJob{}, fmt.Errorf("parse updated_at: %w", err)
	}
	j.CreatedAt, j.UpdatedAt = created, updated
	if completedAt.Valid {
		c, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return store.BatchJob{}, fmt.Errorf("parse completed_at: %w", err)
		}
		j.CompletedAt = &c
	}
	return j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatDueDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
