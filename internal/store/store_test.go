package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/vtask/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tasks.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTask(id, phone string, at time.Time) *task.ScheduledTask {
	return &task.ScheduledTask{
		ID:                id,
		TenantID:          "tenant-1",
		ContactName:       "Maria",
		Phone:             phone,
		TaskType:          task.TypeSingleCall,
		Instruction:       "Reminder: " + id,
		ScheduledAt:       at,
		Timezone:          task.DefaultTimezone,
		Recurrence:        task.RecurrenceOnce,
		Status:            task.StatusScheduled,
		MaxAttempts:       1,
		RetryDelayMinutes: task.DefaultRetryDelayMinutes,
		VoiceDirection:    task.DirectionOutbound,
	}
}

var base = time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC)

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := newTask("t1", "+39000", base)
	in.Recurrence = task.RecurrenceWeekly
	in.RecurrenceDays = []int{1, 3}
	in.RecurrenceEndDate = "2026-11-03"
	require.NoError(t, s.Insert(ctx, in))

	got, err := s.Get(ctx, "t1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "+39000", got.Phone)
	assert.True(t, base.Equal(got.ScheduledAt))
	assert.Equal(t, task.RecurrenceWeekly, got.Recurrence)
	assert.Equal(t, []int{1, 3}, got.RecurrenceDays)
	assert.Equal(t, "2026-11-03", got.RecurrenceEndDate)
	assert.Equal(t, task.StatusScheduled, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "t1", "other-tenant")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "missing", "tenant-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, newTask("t1", "+39000", base)))
	assert.Error(t, s.Insert(ctx, newTask("t1", "+39000", base)))
}

func TestInsertAllIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertAll(ctx, []*task.ScheduledTask{
		newTask("a", "+39000", base),
		newTask("b", "+39000", base.Add(time.Hour)),
		newTask("a", "+39000", base.Add(2*time.Hour)),
	})
	require.Error(t, err)
	_, err = s.Get(ctx, "b", "tenant-1")
	assert.ErrorIs(t, err, ErrNotFound, "the whole batch is rolled back")

	require.NoError(t, s.InsertAll(ctx, []*task.ScheduledTask{
		newTask("a", "+39000", base),
		newTask("b", "+39000", base.Add(time.Hour)),
	}))
	_, err = s.Get(ctx, "b", "tenant-1")
	assert.NoError(t, err)
}

func TestFindActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, newTask("late", "+39000", base.Add(3*time.Hour))))
	require.NoError(t, s.Insert(ctx, newTask("early", "+39000", base)))
	require.NoError(t, s.Insert(ctx, newTask("other-phone", "+39111", base)))

	cancelled := newTask("cancelled", "+39000", base.Add(time.Hour))
	cancelled.Status = task.StatusCancelled
	require.NoError(t, s.Insert(ctx, cancelled))

	paused := newTask("paused", "+39000", base.Add(2*time.Hour))
	paused.Status = task.StatusPaused
	require.NoError(t, s.Insert(ctx, paused))

	past := newTask("past-daily", "+39000", base.Add(-48*time.Hour))
	past.Recurrence = task.RecurrenceDaily
	require.NoError(t, s.Insert(ctx, past))

	ids := func(tasks []*task.ScheduledTask) []string {
		out := make([]string, len(tasks))
		for i, t := range tasks {
			out[i] = t.ID
		}
		return out
	}

	all, err := s.FindActive(ctx, Query{TenantID: "tenant-1", Phone: "+39000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"past-daily", "early", "paused", "late"}, ids(all))

	window, err := s.FindActive(ctx, Query{TenantID: "tenant-1", Phone: "+39000", From: base.Add(-30 * time.Minute), To: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, ids(window))

	future, err := s.FindActive(ctx, Query{TenantID: "tenant-1", Phone: "+39000", From: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"paused", "late"}, ids(future))

	withRecurring, err := s.FindActive(ctx, Query{TenantID: "tenant-1", Phone: "+39000", From: base.Add(time.Minute), IncludeRecurring: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"past-daily", "paused", "late"}, ids(withRecurring))

	limited, err := s.FindActive(ctx, Query{TenantID: "tenant-1", Phone: "+39000", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	tenantWide, err := s.FindActive(ctx, Query{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Len(t, tenantWide, 5)
}

func TestUpdatePartial(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, newTask("t1", "+39000", base)))

	moved := base.Add(2 * time.Hour)
	ok, err := s.Update(ctx, "t1", "tenant-1", Patch{ScheduledAt: &moved})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "t1", "tenant-1")
	require.NoError(t, err)
	assert.True(t, moved.Equal(got.ScheduledAt))
	assert.Equal(t, "Reminder: t1", got.Instruction)

	instr := "Call the bank about the mortgage"
	ok, err = s.Update(ctx, "t1", "tenant-1", Patch{Instruction: &instr})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.Get(ctx, "t1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, instr, got.Instruction)
	assert.True(t, moved.Equal(got.ScheduledAt))
}

func TestUpdateAndCancelRequireActiveStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, newTask("t1", "+39000", base)))

	ok, err := s.Cancel(ctx, "t1", "tenant-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "t1", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status)

	// a second cancel loses the race and changes nothing
	ok, err = s.Cancel(ctx, "t1", "tenant-1")
	require.NoError(t, err)
	assert.False(t, ok)

	instr := "too late"
	ok, err = s.Update(ctx, "t1", "tenant-1", Patch{Instruction: &instr})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Cancel(ctx, "missing", "tenant-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelScopedToTenant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, newTask("t1", "+39000", base)))

	ok, err := s.Cancel(ctx, "t1", "tenant-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
