package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/vtask/internal/store"
	"github.com/iambrandonn/vtask/internal/task"
)

// ErrNotFound is returned by Modify and Cancel when no active task matches
// the target, including when the matched task changed status before the
// update landed.
var ErrNotFound = errors.New("no matching active task")

const (
	DefaultConflictWindow = 30 * time.Minute
	DefaultListLimit      = 20

	// instructions at or below this length are replaced by the default text
	minInstructionLength = 20
)

// Store is the persistence the executor needs
type Store interface {
	InsertAll(ctx context.Context, tasks []*task.ScheduledTask) error
	FindActive(ctx context.Context, q store.Query) ([]*task.ScheduledTask, error)
	Update(ctx context.Context, id, tenantID string, patch store.Patch) (bool, error)
	Cancel(ctx context.Context, id, tenantID string) (bool, error)
}

// Caller identifies whose tasks an operation touches
type Caller struct {
	TenantID    string
	Phone       string
	ContactName string
}

// Options configures an Executor. Zero values take defaults.
type Options struct {
	Location       *time.Location
	ConflictWindow time.Duration
	ListLimit      int
	Now            func() time.Time
	NewID          func() string
	Logger         *slog.Logger
}

// Executor runs task operations against the store
type Executor struct {
	store  Store
	loc    *time.Location
	window time.Duration
	limit  int
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	mu        sync.Mutex
	committed map[string][]string
}

// New creates an Executor
func New(st Store, opts Options) *Executor {
	e := &Executor{
		store:     st,
		loc:       opts.Location,
		window:    opts.ConflictWindow,
		limit:     opts.ListLimit,
		now:       opts.Now,
		newID:     opts.NewID,
		logger:    opts.Logger,
		committed: make(map[string][]string),
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.window <= 0 {
		e.window = DefaultConflictWindow
	}
	if e.limit <= 0 {
		e.limit = DefaultListLimit
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Location returns the tenant timezone used to resolve dates and times
func (e *Executor) Location() *time.Location {
	return e.loc
}

// CreateResult describes the tasks written by Create
type CreateResult struct {
	IDs             []string
	Tasks           []*task.ScheduledTask
	ConflictWarning string
	Message         string
	// Replayed is set when key had already been committed and nothing was written
	Replayed bool
}

// Create inserts one task per complete draft, all in one transaction. A
// non-empty key makes the call idempotent: repeating a committed key returns
// the earlier ids without writing.
func (e *Executor) Create(ctx context.Context, c Caller, key string, drafts []task.Draft) (*CreateResult, error) {
	complete := make([]task.Draft, 0, len(drafts))
	for _, d := range drafts {
		if d.Complete() {
			complete = append(complete, d)
		}
	}
	if len(complete) == 0 {
		return nil, fmt.Errorf("no complete task drafts to create")
	}

	if key != "" {
		e.mu.Lock()
		ids, done := e.committed[key]
		e.mu.Unlock()
		if done {
			e.logger.Info("create already committed, skipping", "intent_key", key, "task_ids", ids)
			return &CreateResult{
				IDs:      append([]string(nil), ids...),
				Message:  createdMessage(complete),
				Replayed: true,
			}, nil
		}
	}

	result := &CreateResult{}
	var conflicts []string
	for _, d := range complete {
		at, err := task.Resolve(d.Date, d.Time, e.loc)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schedule for %q: %w", d.Description, err)
		}

		existing, err := e.store.FindActive(ctx, store.Query{
			TenantID: c.TenantID,
			Phone:    c.Phone,
			From:     at.Add(-e.window),
			To:       at.Add(e.window),
			Limit:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check conflicts: %w", err)
		}
		if len(existing) > 0 {
			other := existing[0]
			conflicts = append(conflicts, fmt.Sprintf("Conflict: %q is already scheduled at %s",
				other.ShortDescription(), other.ScheduledAt.In(e.loc).Format(task.ClockLayout)))
		}

		result.Tasks = append(result.Tasks, e.newTask(c, d, at))
	}

	if err := e.store.InsertAll(ctx, result.Tasks); err != nil {
		return nil, fmt.Errorf("failed to create tasks: %w", err)
	}
	for _, t := range result.Tasks {
		e.logger.Info("task created",
			"task_id", t.ID,
			"scheduled_at", t.ScheduledAt.Format(time.RFC3339),
			"recurrence", t.Recurrence)
		result.IDs = append(result.IDs, t.ID)
	}

	if key != "" {
		e.mu.Lock()
		e.committed[key] = append([]string(nil), result.IDs...)
		e.mu.Unlock()
	}

	result.ConflictWarning = strings.Join(conflicts, "; ")
	result.Message = createdMessage(complete)
	return result, nil
}

func (e *Executor) newTask(c Caller, d task.Draft, at time.Time) *task.ScheduledTask {
	taskType, maxAttempts := task.TypeSingleCall, 1
	if d.Recurrence.IsRecurring() {
		taskType, maxAttempts = task.TypeFollowUp, 3
	}

	instruction := d.CallInstruction
	if len(instruction) <= minInstructionLength {
		instruction = "Reminder: " + d.Description
		if c.ContactName != "" {
			instruction += fmt.Sprintf(". You are calling back %s as they requested.", c.ContactName)
		}
	}

	now := e.now().UTC()
	return &task.ScheduledTask{
		ID:                e.newID(),
		TenantID:          c.TenantID,
		ContactName:       c.ContactName,
		Phone:             c.Phone,
		TaskType:          taskType,
		Instruction:       instruction,
		ScheduledAt:       at,
		Timezone:          e.loc.String(),
		Recurrence:        d.Recurrence,
		RecurrenceDays:    d.RecurrenceDays,
		RecurrenceEndDate: d.RecurrenceEndDate,
		Status:            task.StatusScheduled,
		MaxAttempts:       maxAttempts,
		RetryDelayMinutes: task.DefaultRetryDelayMinutes,
		VoiceDirection:    task.DirectionOutbound,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func createdMessage(drafts []task.Draft) string {
	parts := make([]string, len(drafts))
	for i, d := range drafts {
		parts[i] = fmt.Sprintf("%q on %s at %s", d.Description, d.Date, d.Time)
	}
	head := "The reminder was created successfully"
	if len(drafts) > 1 {
		head = "The reminders were created successfully"
	}
	return fmt.Sprintf("[TASK_CREATED] %s: %s. Tell the caller everything is set and they will be called back as agreed.",
		head, strings.Join(parts, ", "))
}

// ChangeResult describes a modified or cancelled task
type ChangeResult struct {
	TaskID  string
	Message string
}

// Modify applies the new values in target to the earliest matching active task
func (e *Executor) Modify(ctx context.Context, c Caller, target *task.ModifyTarget) (*ChangeResult, error) {
	match, err := e.resolve(ctx, c, target)
	if err != nil {
		return nil, err
	}

	var patch store.Patch
	if target.NewDate != "" || target.NewTime != "" {
		local := match.ScheduledAt.In(e.loc)
		date, clock := target.NewDate, target.NewTime
		if date == "" {
			date = local.Format(task.DateLayout)
		}
		if clock == "" {
			clock = local.Format(task.ClockLayout)
		}
		at, err := task.Resolve(date, clock, e.loc)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve new schedule: %w", err)
		}
		patch.ScheduledAt = &at
	}
	if target.NewDescription != "" {
		desc := target.NewDescription
		patch.Instruction = &desc
	}

	ok, err := e.store.Update(ctx, match.ID, c.TenantID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to modify task %s: %w", match.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %s is no longer active", ErrNotFound, match.ID)
	}
	target.TargetTaskID = match.ID

	desc := target.NewDescription
	if desc == "" {
		desc = match.ShortDescription()
	}
	e.logger.Info("task modified", "task_id", match.ID, "search_by", target.SearchBy)
	return &ChangeResult{
		TaskID:  match.ID,
		Message: fmt.Sprintf("[TASK_MODIFIED] Reminder %q modified successfully. Confirm the change to the caller.", desc),
	}, nil
}

// Cancel marks the earliest matching active task cancelled. The record is kept.
func (e *Executor) Cancel(ctx context.Context, c Caller, target *task.ModifyTarget) (*ChangeResult, error) {
	match, err := e.resolve(ctx, c, target)
	if err != nil {
		return nil, err
	}

	ok, err := e.store.Cancel(ctx, match.ID, c.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel task %s: %w", match.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %s is no longer active", ErrNotFound, match.ID)
	}
	target.TargetTaskID = match.ID

	e.logger.Info("task cancelled", "task_id", match.ID, "search_by", target.SearchBy)
	return &ChangeResult{
		TaskID:  match.ID,
		Message: fmt.Sprintf("[TASK_CANCELLED] Reminder %q cancelled successfully. Confirm the cancellation to the caller.", match.ShortDescription()),
	}, nil
}

// resolve picks the task target refers to. When several match, the earliest
// scheduled wins.
// TODO: confirm earliest-wins with product; asking the caller to pick may be preferred.
func (e *Executor) resolve(ctx context.Context, c Caller, target *task.ModifyTarget) (*task.ScheduledTask, error) {
	if !target.Resolved() {
		return nil, fmt.Errorf("%w: no search value given", ErrNotFound)
	}

	candidates, err := e.store.FindActive(ctx, store.Query{TenantID: c.TenantID, Phone: c.Phone})
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}

	if target.TargetTaskID != "" {
		for _, t := range candidates {
			if t.ID == target.TargetTaskID {
				return t, nil
			}
		}
	}

	for _, t := range candidates {
		if e.matches(t, target) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, target.Reference())
}

func (e *Executor) matches(t *task.ScheduledTask, target *task.ModifyTarget) bool {
	local := t.ScheduledAt.In(e.loc)
	switch target.SearchBy {
	case task.SearchByDate:
		return local.Format(task.DateLayout) == strings.TrimSpace(target.OriginalDate)
	case task.SearchByTime:
		return local.Format(task.ClockLayout) == task.NormalizeClock(target.OriginalTime)
	case task.SearchByDescription:
		return strings.Contains(strings.ToLower(t.Instruction), strings.ToLower(strings.TrimSpace(target.OriginalDescription)))
	}
	return false
}
