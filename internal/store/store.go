package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/iambrandonn/vtask/internal/task"
)

// ErrNotFound is returned when no task matches the id and tenant
var ErrNotFound = errors.New("task not found")

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	contact_name        TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL,
	task_type           TEXT NOT NULL,
	instruction         TEXT NOT NULL,
	scheduled_at        INTEGER NOT NULL,
	timezone            TEXT NOT NULL,
	recurrence          TEXT NOT NULL DEFAULT 'once',
	recurrence_days     TEXT,
	recurrence_end_date TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	max_attempts        INTEGER NOT NULL DEFAULT 1,
	current_attempt     INTEGER NOT NULL DEFAULT 0,
	retry_delay_minutes INTEGER NOT NULL DEFAULT 15,
	voice_direction     TEXT NOT NULL DEFAULT 'outbound',
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_phone
	ON scheduled_tasks(tenant_id, phone, status, scheduled_at);
`

const columns = `id, tenant_id, contact_name, phone, task_type, instruction, scheduled_at, timezone,
	recurrence, recurrence_days, recurrence_end_date, status, max_attempts, current_attempt,
	retry_delay_minutes, voice_direction, created_at, updated_at`

// Store persists scheduled tasks in SQLite
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	ctx := context.Background()
	for _, q := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;"} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", q, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Debug("task store opened", "path", path)
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes a new task. CreatedAt and UpdatedAt are set when zero.
func (s *Store) Insert(ctx context.Context, t *task.ScheduledTask) error {
	return s.InsertAll(ctx, []*task.ScheduledTask{t})
}

// InsertAll writes tasks in one transaction: either every task is stored or
// none is.
func (s *Store) InsertAll(ctx context.Context, tasks []*task.ScheduledTask) error {
	now := time.Now().UTC()
	rows := make([][]any, len(tasks))
	for i, t := range tasks {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = now
		}
		days, err := encodeDays(t.RecurrenceDays)
		if err != nil {
			return err
		}
		rows[i] = []any{
			t.ID, t.TenantID, t.ContactName, t.Phone, t.TaskType, t.Instruction,
			t.ScheduledAt.Unix(), t.Timezone, string(t.Recurrence), days, t.RecurrenceEndDate,
			string(t.Status), t.MaxAttempts, t.CurrentAttempt, t.RetryDelayMinutes, t.VoiceDirection,
			t.CreatedAt.Unix(), t.UpdatedAt.Unix(),
		}
	}

	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for i, t := range tasks {
			if _, err := tx.ExecContext(ctx, `INSERT INTO scheduled_tasks (`+columns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, rows[i]...); err != nil {
				return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit tasks: %w", err)
		}
		return nil
	})
}

// Get loads a task by id within a tenant
func (s *Store) Get(ctx context.Context, id, tenantID string) (*task.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM scheduled_tasks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return t, nil
}

// Query selects active tasks
type Query struct {
	TenantID string
	// Phone restricts to one contact when set
	Phone string
	// From and To bound scheduled_at inclusively; zero values leave that side open
	From time.Time
	To   time.Time
	// IncludeRecurring keeps daily and weekly tasks that fall before From
	IncludeRecurring bool
	// Limit caps the result; zero means no cap
	Limit int
}

// FindActive returns tasks in an active status matching q, earliest first
func (s *Store) FindActive(ctx context.Context, q Query) ([]*task.ScheduledTask, error) {
	where, args := activePredicate(q.TenantID)
	if q.Phone != "" {
		where = append(where, "phone = ?")
		args = append(args, q.Phone)
	}
	if !q.From.IsZero() {
		if q.IncludeRecurring {
			where = append(where, "(scheduled_at >= ? OR recurrence IN (?, ?))")
			args = append(args, q.From.Unix(), string(task.RecurrenceDaily), string(task.RecurrenceWeekly))
		} else {
			where = append(where, "scheduled_at >= ?")
			args = append(args, q.From.Unix())
		}
	}
	if !q.To.IsZero() {
		where = append(where, "scheduled_at <= ?")
		args = append(args, q.To.Unix())
	}

	query := `SELECT ` + columns + ` FROM scheduled_tasks WHERE ` + strings.Join(where, " AND ") + ` ORDER BY scheduled_at ASC, id ASC`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}

// Patch lists the fields a modify operation changes; nil fields are left alone
type Patch struct {
	ScheduledAt *time.Time
	Instruction *string
}

// Update applies patch to an active task. It reports false when the task is
// missing or no longer active.
func (s *Store) Update(ctx context.Context, id, tenantID string, patch Patch) (bool, error) {
	var scheduledAt, instruction any
	if patch.ScheduledAt != nil {
		scheduledAt = patch.ScheduledAt.Unix()
	}
	if patch.Instruction != nil {
		instruction = *patch.Instruction
	}

	where, args := activePredicate(tenantID)
	where = append([]string{"id = ?"}, where...)
	args = append([]any{scheduledAt, instruction, time.Now().UTC().Unix(), id}, args...)

	return s.execPredicate(ctx, `UPDATE scheduled_tasks
		SET scheduled_at = COALESCE(?, scheduled_at),
		    instruction = COALESCE(?, instruction),
		    updated_at = ?
		WHERE `+strings.Join(where, " AND "), args)
}

// Cancel marks an active task cancelled. It reports false when the task is
// missing or no longer active.
func (s *Store) Cancel(ctx context.Context, id, tenantID string) (bool, error) {
	where, args := activePredicate(tenantID)
	where = append([]string{"id = ?"}, where...)
	args = append([]any{string(task.StatusCancelled), time.Now().UTC().Unix(), id}, args...)

	return s.execPredicate(ctx, `UPDATE scheduled_tasks SET status = ?, updated_at = ? WHERE `+strings.Join(where, " AND "), args)
}

func (s *Store) execPredicate(ctx context.Context, query string, args []any) (bool, error) {
	var changed bool
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	return changed, nil
}

func activePredicate(tenantID string) ([]string, []any) {
	placeholders := make([]string, len(task.ActiveStatuses))
	args := []any{tenantID}
	for i, st := range task.ActiveStatuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	return []string{"tenant_id = ?", "status IN (" + strings.Join(placeholders, ", ") + ")"}, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.ScheduledTask, error) {
	var (
		t                                 task.ScheduledTask
		scheduledAt, createdAt, updatedAt int64
		recurrence, status                string
		days                              sql.NullString
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.ContactName, &t.Phone, &t.TaskType, &t.Instruction,
		&scheduledAt, &t.Timezone, &recurrence, &days, &t.RecurrenceEndDate, &status,
		&t.MaxAttempts, &t.CurrentAttempt, &t.RetryDelayMinutes, &t.VoiceDirection,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	t.Recurrence = task.ParseRecurrence(recurrence)
	t.Status = task.Status(status)
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &t.RecurrenceDays); err != nil {
			return nil, fmt.Errorf("invalid recurrence_days for %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func encodeDays(days []int) (any, error) {
	if len(days) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(days)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recurrence days: %w", err)
	}
	return string(b), nil
}

// retryOnBusy retries f with jittered exponential backoff while SQLite reports BUSY or LOCKED
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil || !isBusy(err) || attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay = delay - delay/4 + time.Duration(rand.IntN(int(delay/2)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
