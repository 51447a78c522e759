package task

import (
	"slices"
	"strings"
	"time"
)

// Stage represents where a call's supervisor is in the intent/confirmation cycle
type Stage string

const (
	StageNoIntent              Stage = "no_intent"
	StageCollectingData        Stage = "collecting_data"
	StageDataComplete          Stage = "data_complete"
	StageConfirmationRequested Stage = "confirmation_requested"
	StageConfirmed             Stage = "confirmed"
	StageCompleted             Stage = "completed"
	StageError                 Stage = "error"
)

// Intent represents what the caller wants to do with their reminders
type Intent string

const (
	IntentNone   Intent = "none"
	IntentCreate Intent = "create_task"
	IntentModify Intent = "modify_task"
	IntentCancel Intent = "cancel_task"
	IntentList   Intent = "list_tasks"
)

// ParseIntent maps a model-supplied intent name onto a known Intent.
// Anything unrecognised is IntentNone.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentCreate:
		return IntentCreate
	case IntentModify:
		return IntentModify
	case IntentCancel:
		return IntentCancel
	case IntentList:
		return IntentList
	default:
		return IntentNone
	}
}

// Mutates reports whether the intent changes stored tasks and therefore
// needs explicit confirmation.
func (i Intent) Mutates() bool {
	return i == IntentCreate || i == IntentModify || i == IntentCancel
}

// Recurrence is the repetition kind of a scheduled task
type Recurrence string

const (
	RecurrenceOnce   Recurrence = "once"
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

// ParseRecurrence defaults to RecurrenceOnce for empty or unknown values.
func ParseRecurrence(s string) Recurrence {
	switch Recurrence(strings.ToLower(strings.TrimSpace(s))) {
	case RecurrenceDaily:
		return RecurrenceDaily
	case RecurrenceWeekly:
		return RecurrenceWeekly
	default:
		return RecurrenceOnce
	}
}

// IsRecurring reports whether the task repeats
func (r Recurrence) IsRecurring() bool {
	return r == RecurrenceDaily || r == RecurrenceWeekly
}

// Annotation returns the short suffix used when reading tasks back to a caller
func (r Recurrence) Annotation() string {
	switch r {
	case RecurrenceDaily:
		return " (daily)"
	case RecurrenceWeekly:
		return " (weekly)"
	default:
		return ""
	}
}

// Status is the lifecycle state of a persisted task
type Status string

const (
	StatusScheduled    Status = "scheduled"
	StatusRetryPending Status = "retry_pending"
	StatusPaused       Status = "paused"
	StatusCancelled    Status = "cancelled"
	StatusCompleted    Status = "completed"
)

// ActiveStatuses are the statuses a task can be modified or cancelled from
var ActiveStatuses = []Status{StatusScheduled, StatusRetryPending, StatusPaused}

// IsActive reports whether s is one of ActiveStatuses
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Action is the outcome kind of one analysis pass
type Action string

const (
	ActionNone           Action = "none"
	ActionConfirmRequest Action = "confirm_request"
	ActionTasksCreated   Action = "tasks_created"
	ActionTaskModified   Action = "task_modified"
	ActionTaskCancelled  Action = "task_cancelled"
	ActionTasksListed    Action = "tasks_listed"
	ActionTaskFailed     Action = "task_failed"
)

// Task types and defaults recorded on new tasks
const (
	TypeSingleCall = "single_call"
	TypeFollowUp   = "follow_up"

	DirectionOutbound = "outbound"

	DefaultRetryDelayMinutes = 15
)

// Draft is an in-progress reminder extracted from the conversation, not yet persisted
type Draft struct {
	Description       string     `json:"description"`
	Date              string     `json:"date"`
	Time              string     `json:"time"`
	Recurrence        Recurrence `json:"recurrence"`
	RecurrenceDays    []int      `json:"recurrence_days,omitempty"`
	RecurrenceEndDate string     `json:"recurrence_end_date,omitempty"`
	OriginalPhrase    string     `json:"original_phrase,omitempty"`
	CallInstruction   string     `json:"call_instruction,omitempty"`
}

// Complete reports whether the draft has a description and a parseable date and time
func (d Draft) Complete() bool {
	if strings.TrimSpace(d.Description) == "" {
		return false
	}
	if _, err := ParseDate(d.Date); err != nil {
		return false
	}
	if _, _, err := ParseClock(d.Time); err != nil {
		return false
	}
	return true
}

// AllComplete reports whether drafts is non-empty and every draft is complete
func AllComplete(drafts []Draft) bool {
	if len(drafts) == 0 {
		return false
	}
	for _, d := range drafts {
		if !d.Complete() {
			return false
		}
	}
	return true
}

// CloneDrafts returns a deep copy of drafts
func CloneDrafts(drafts []Draft) []Draft {
	if drafts == nil {
		return nil
	}
	out := make([]Draft, len(drafts))
	for i, d := range drafts {
		out[i] = d
		if d.RecurrenceDays != nil {
			out[i].RecurrenceDays = append([]int(nil), d.RecurrenceDays...)
		}
	}
	return out
}

// SearchBy names the field used to locate an existing task
type SearchBy string

const (
	SearchByDate        SearchBy = "date"
	SearchByTime        SearchBy = "time"
	SearchByDescription SearchBy = "description"
)

// ModifyTarget describes how to find the task to change or cancel, and the new values
type ModifyTarget struct {
	SearchBy            SearchBy `json:"search_by"`
	OriginalDate        string   `json:"original_date,omitempty"`
	OriginalTime        string   `json:"original_time,omitempty"`
	OriginalDescription string   `json:"original_description,omitempty"`
	NewDate             string   `json:"new_date,omitempty"`
	NewTime             string   `json:"new_time,omitempty"`
	NewDescription      string   `json:"new_description,omitempty"`
	TargetTaskID        string   `json:"target_task_id,omitempty"`
}

// Resolved reports whether the value named by SearchBy is present
func (m *ModifyTarget) Resolved() bool {
	if m == nil {
		return false
	}
	switch m.SearchBy {
	case SearchByDate:
		return m.OriginalDate != ""
	case SearchByTime:
		return m.OriginalTime != ""
	case SearchByDescription:
		return strings.TrimSpace(m.OriginalDescription) != ""
	}
	return false
}

// HasChanges reports whether any new value was supplied
func (m *ModifyTarget) HasChanges() bool {
	return m != nil && (m.NewDate != "" || m.NewTime != "" || m.NewDescription != "")
}

// Reference is a human-readable reference to the original task
func (m *ModifyTarget) Reference() string {
	if m == nil {
		return ""
	}
	if m.OriginalDescription != "" {
		return `"` + m.OriginalDescription + `"`
	}
	ref := "scheduled"
	if m.OriginalDate != "" {
		ref += " on " + m.OriginalDate
	}
	if m.OriginalTime != "" {
		ref += " at " + m.OriginalTime
	}
	return ref
}

// ListFilter restricts a list query to a single date or a date range
type ListFilter struct {
	Date       string `json:"date,omitempty"`
	RangeStart string `json:"range_start,omitempty"`
	RangeEnd   string `json:"range_end,omitempty"`
}

// ScheduledTask is the persisted reminder/callback record
type ScheduledTask struct {
	ID                string
	TenantID          string
	ContactName       string
	Phone             string
	TaskType          string
	Instruction       string
	ScheduledAt       time.Time
	Timezone          string
	Recurrence        Recurrence
	RecurrenceDays    []int
	RecurrenceEndDate string
	Status            Status
	MaxAttempts       int
	CurrentAttempt    int
	RetryDelayMinutes int
	VoiceDirection    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ShortDescription trims the instruction to its first sentence, or 80 characters
func (t *ScheduledTask) ShortDescription() string {
	runes := []rune(t.Instruction)
	if idx := slices.Index(runes, '.'); idx > 0 && idx <= 80 {
		return string(runes[:idx])
	}
	if len(runes) > 80 {
		return string(runes[:80]) + "..."
	}
	return t.Instruction
}
