package supervisor

import (
	"fmt"
	"strings"

	"github.com/iambrandonn/vtask/internal/task"
)

// Caller-facing instructions. The bracketed tag at the start lets the voice
// agent and the transcript filter recognise them as system messages.
const (
	notFoundMessage = "[TASK_NOT_FOUND] I could not find a matching reminder. Ask the caller to describe it more precisely."
	failedMessage   = "[TASK_FAILED] Something went wrong while saving. Apologize to the caller and ask them to repeat the request."
)

// ConfirmationRequest builds the [CONFIRM_TASK] instruction for the pending operation in s
func ConfirmationRequest(s State) string {
	switch s.Intent {
	case task.IntentCreate:
		var summaries []string
		for _, d := range s.Drafts {
			if !d.Complete() {
				continue
			}
			summaries = append(summaries, fmt.Sprintf("%q on %s at %s%s", d.Description, d.Date, d.Time, recurrenceText(d)))
		}
		if len(summaries) > 0 {
			return fmt.Sprintf("[CONFIRM_TASK] Ask the caller for explicit confirmation before going ahead. Summary: they want a reminder for %s. Ask: \"Do you confirm you want me to set this reminder?\" and wait for the answer.",
				strings.Join(summaries, ", "))
		}

	case task.IntentModify:
		var changes []string
		if m := s.ModifyTarget; m != nil {
			if m.NewDate != "" {
				changes = append(changes, "date: "+m.NewDate)
			}
			if m.NewTime != "" {
				changes = append(changes, "time: "+m.NewTime)
			}
			if m.NewDescription != "" {
				changes = append(changes, fmt.Sprintf("description: %q", m.NewDescription))
			}
		}
		return fmt.Sprintf("[CONFIRM_TASK] Ask the caller for explicit confirmation. They want to change the reminder %s -> %s. Ask: \"Do you confirm the change?\" and wait for the answer.",
			s.ModifyTarget.Reference(), strings.Join(changes, ", "))

	case task.IntentCancel:
		return fmt.Sprintf("[CONFIRM_TASK] Ask the caller for explicit confirmation. They want to cancel the reminder %s. Ask: \"Do you confirm the cancellation?\" and wait for the answer.",
			s.ModifyTarget.Reference())
	}

	return "[CONFIRM_TASK] Ask the caller for explicit confirmation before going ahead with the reminder operation."
}

func recurrenceText(d task.Draft) string {
	switch d.Recurrence {
	case task.RecurrenceDaily:
		return " (every day)"
	case task.RecurrenceWeekly:
		var names []string
		for _, day := range d.RecurrenceDays {
			if day >= 0 && day < len(task.WeekdayNames) {
				names = append(names, task.WeekdayNames[day])
			}
		}
		if len(names) == 0 {
			return " (weekly)"
		}
		return " (every " + strings.Join(names, " and ") + ")"
	}
	return ""
}
