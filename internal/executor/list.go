package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iambrandonn/vtask/internal/store"
	"github.com/iambrandonn/vtask/internal/task"
)

// NoActiveReminders is the list text when nothing is scheduled
const NoActiveReminders = "No active reminders."

// ListResult is the read-only answer to a list request
type ListResult struct {
	Tasks   []*task.ScheduledTask
	Text    string
	Message string
}

// List returns up to the configured limit of future active tasks, optionally
// narrowed to a date or date range. It never writes.
func (e *Executor) List(ctx context.Context, c Caller, filter *task.ListFilter) (*ListResult, error) {
	q := store.Query{
		TenantID: c.TenantID,
		Phone:    c.Phone,
		From:     e.now(),
		Limit:    e.limit,
	}
	if filter != nil {
		from, to := e.filterBounds(filter)
		if from.After(q.From) {
			q.From = from
		}
		q.To = to
	}

	tasks, err := e.store.FindActive(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(tasks) == 0 {
		return &ListResult{
			Text:    NoActiveReminders,
			Message: "[TASK_LIST] There are no active reminders for this number. Tell the caller.",
		}, nil
	}

	lines := make([]string, len(tasks))
	for i, t := range tasks {
		local := t.ScheduledAt.In(e.loc)
		lines[i] = fmt.Sprintf("%d. %s - %s %s at %s%s",
			i+1, t.Instruction, task.WeekdayNames[local.Weekday()],
			local.Format("02/01/2006"), local.Format(task.ClockLayout), t.Recurrence.Annotation())
	}
	text := strings.Join(lines, "\n")

	return &ListResult{
		Tasks:   tasks,
		Text:    text,
		Message: fmt.Sprintf("[TASK_LIST] Here are the active reminders:\n%s\n\nRead the list to the caller naturally.", text),
	}, nil
}

// filterBounds turns a list filter into a [from, to] window. Unparseable
// dates leave that side open.
func (e *Executor) filterBounds(f *task.ListFilter) (time.Time, time.Time) {
	if f.Date != "" {
		start, end, err := task.DayBounds(f.Date, e.loc)
		if err == nil {
			return start, end.Add(-time.Second)
		}
		e.logger.Debug("ignoring unparseable list date", "date", f.Date, "error", err)
	}

	var from, to time.Time
	if f.RangeStart != "" {
		if start, _, err := task.DayBounds(f.RangeStart, e.loc); err == nil {
			from = start
		}
	}
	if f.RangeEnd != "" {
		if _, end, err := task.DayBounds(f.RangeEnd, e.loc); err == nil {
			to = end.Add(-time.Second)
		}
	}
	return from, to
}

// ActiveSummary formats the caller's active tasks, future or recurring, for
// the extraction prompt. It returns "" when there are none.
func (e *Executor) ActiveSummary(ctx context.Context, c Caller) (string, error) {
	tasks, err := e.store.FindActive(ctx, store.Query{
		TenantID:         c.TenantID,
		Phone:            c.Phone,
		From:             e.now(),
		IncludeRecurring: true,
		Limit:            e.limit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to load active tasks: %w", err)
	}

	lines := make([]string, len(tasks))
	for i, t := range tasks {
		local := t.ScheduledAt.In(e.loc)
		lines[i] = fmt.Sprintf("- [ID: %s] %s %s at %s - %q%s",
			t.ID, task.WeekdayNames[local.Weekday()], local.Format("02/01"),
			local.Format(task.ClockLayout), t.ShortDescription(), t.Recurrence.Annotation())
	}
	return strings.Join(lines, "\n"), nil
}
