package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/iambrandonn/vtask/internal/task"
	"github.com/iambrandonn/vtask/internal/transcript"
)

// NoActiveTasks is shown when the caller has nothing scheduled
const NoActiveTasks = "No active tasks."

// Snapshot is the part of the supervisor state shown to the model
type Snapshot struct {
	Stage        task.Stage
	Intent       task.Intent
	Confirmed    bool
	Drafts       []task.Draft
	ModifyTarget *task.ModifyTarget
}

// Input holds everything one analysis prompt is built from
type Input struct {
	Now      time.Time
	Location *time.Location
	State    Snapshot
	// ActiveTasks is the pre-formatted list of the caller's tasks
	ActiveTasks string
	// Turns is the transcript slice after the boundary
	Turns []transcript.Turn
	// AfterBoundary is set once an operation has completed in this call
	AfterBoundary bool
}

// clock is the calendar context derived from the current instant
type clock struct {
	today       string
	weekday     string
	now         string
	tomorrow    string
	dayAfter    string
	nextMonday  string
	twoWeeks    string
	plusFive    string
	plusTwoHour string
}

func newClock(now time.Time, loc *time.Location) clock {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	days := (int(time.Monday) - int(local.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return clock{
		today:       local.Format(task.DateLayout),
		weekday:     task.WeekdayNames[local.Weekday()],
		now:         local.Format(task.ClockLayout),
		tomorrow:    local.AddDate(0, 0, 1).Format(task.DateLayout),
		dayAfter:    local.AddDate(0, 0, 2).Format(task.DateLayout),
		nextMonday:  local.AddDate(0, 0, days).Format(task.DateLayout),
		twoWeeks:    local.AddDate(0, 0, 14).Format(task.DateLayout),
		plusFive:    local.Add(5 * time.Minute).Format(task.DateLayout + " " + task.ClockLayout),
		plusTwoHour: local.Add(2 * time.Hour).Format(task.DateLayout + " " + task.ClockLayout),
	}
}

// Build composes the structured-extraction prompt for one analysis pass
func Build(in Input) string {
	c := newClock(in.Now, in.Location)
	var sb strings.Builder

	sb.WriteString("You analyze live voice-call transcripts for a reminder and callback scheduling system.\n")
	if in.AfterBoundary {
		sb.WriteString("\nIMPORTANT CONTEXT: a task operation was just completed successfully. The transcript below contains ONLY the turns that came AFTER that operation. Ignore any reference to tasks that were already handled and focus exclusively on the caller's NEW request in this part of the conversation.\n")
	}

	sb.WriteString(fmt.Sprintf("\nTODAY: %s (%s)\n", c.today, c.weekday))
	sb.WriteString(fmt.Sprintf("CURRENT TIME: %s\n", c.now))

	sb.WriteString("\nTIME CONVERSION RULES:\n")
	sb.WriteString(fmt.Sprintf("- \"tomorrow\" = %s\n", c.tomorrow))
	sb.WriteString(fmt.Sprintf("- \"the day after tomorrow\" = %s\n", c.dayAfter))
	sb.WriteString(fmt.Sprintf("- \"in X minutes\" = add exactly X minutes to CURRENT TIME. Example: CURRENT TIME is %s, so \"in 5 minutes\" is %s\n", c.now, c.plusFive))
	sb.WriteString(fmt.Sprintf("- \"in X hours\" = add exactly X hours to CURRENT TIME. Example: \"in 2 hours\" is %s\n", c.plusTwoHour))
	sb.WriteString("- \"after lunch\" = 14:00\n")
	sb.WriteString(fmt.Sprintf("- \"next week\" = next Monday after today (%s)\n", c.nextMonday))
	sb.WriteString(fmt.Sprintf("- \"in X days\" = %s + X days\n", c.today))
	sb.WriteString("- \"every Monday and Wednesday\" = recurrence_type=\"weekly\", recurrence_days=[1,3] (0=Sunday ... 6=Saturday)\n")
	sb.WriteString(fmt.Sprintf("- \"for the next 2 weeks\" = recurrence_end_date = today + 14 days (%s)\n", c.twoWeeks))
	sb.WriteString("- \"tonight\" = today, 20:00\n")
	sb.WriteString("- \"this morning\" = today, 09:00\n")
	sb.WriteString("- \"this afternoon\" = today, 15:00\n")
	sb.WriteString("- For ANY relative expression (\"in X minutes\", \"in X hours\") you MUST compute the exact time from CURRENT TIME. Never use a default value for them.\n")
	sb.WriteString("- If no time is given AND the expression is not relative, use 09:00.\n")

	sb.WriteString("\nCURRENT STATE:\n")
	sb.WriteString(fmt.Sprintf("- Stage: %s\n", in.State.Stage))
	sb.WriteString(fmt.Sprintf("- Current intent: %s\n", in.State.Intent))
	sb.WriteString(fmt.Sprintf("- Confirmed: %t\n", in.State.Confirmed))
	sb.WriteString("- Extracted tasks:\n")
	sb.WriteString(formatDrafts(in.State.Drafts))
	sb.WriteString("\n- Modify target: ")
	sb.WriteString(formatTarget(in.State.ModifyTarget))
	sb.WriteString("\n")

	active := strings.TrimSpace(in.ActiveTasks)
	if active == "" {
		active = NoActiveTasks
	}
	sb.WriteString("\nEXISTING TASKS FOR THIS CALLER:\n")
	sb.WriteString(active)
	sb.WriteString("\n\nIMPORTANT: for \"modify_task\" and \"cancel_task\", use the existing tasks above to identify which task the caller means. Match by description, date or time.\n")

	sb.WriteString("\nRECENT TRANSCRIPT:\n")
	sb.WriteString(transcript.Format(in.Turns))
	sb.WriteString("\n")

	sb.WriteString(replySchema)
	sb.WriteString(criticalRules)

	return sb.String()
}

func formatDrafts(drafts []task.Draft) string {
	if len(drafts) == 0 {
		return "  None"
	}
	lines := make([]string, 0, len(drafts))
	for i, d := range drafts {
		lines = append(lines, fmt.Sprintf("  Task %d: desc=%q, date=%s, time=%s, recurrence=%s, original=%q",
			i+1, d.Description, orNull(d.Date), orNull(d.Time), d.Recurrence, d.OriginalPhrase))
	}
	return strings.Join(lines, "\n")
}

func formatTarget(m *task.ModifyTarget) string {
	if m == nil || m.SearchBy == "" {
		return "None"
	}
	return fmt.Sprintf("search_by=%s, original_date=%s, original_time=%s, original_description=%s, new_date=%s, new_time=%s, new_description=%s",
		m.SearchBy, orNull(m.OriginalDate), orNull(m.OriginalTime), orNull(m.OriginalDescription),
		orNull(m.NewDate), orNull(m.NewTime), orNull(m.NewDescription))
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

const replySchema = `
INSTRUCTIONS:
Analyze the conversation and reply ONLY with valid JSON in this format:
{
  "intent": "create_task|modify_task|cancel_task|list_tasks|none",
  "tasks": [
    {
      "description": "what to remember (short)",
      "date": "YYYY-MM-DD",
      "time": "HH:MM",
      "recurrence_type": "once|daily|weekly" or null,
      "recurrence_days": [1,3,5] or null,
      "recurrence_end_date": "YYYY-MM-DD" or null,
      "original_expression": "the caller's original wording",
      "ai_call_instruction": "Detailed instruction for the automated agent that will place the call: WHO is being called (name if known), WHY (context from this conversation), WHAT to say, and any relevant details that came up."
    }
  ],
  "modify_target": {
    "search_by": "date|description|time",
    "original_date": "YYYY-MM-DD" or null,
    "original_time": "HH:MM" or null,
    "original_description": "text" or null,
    "new_date": "YYYY-MM-DD" or null,
    "new_time": "HH:MM" or null,
    "new_description": "new description" or null
  } or null,
  "list_filter": {
    "date": "YYYY-MM-DD" or null,
    "range_start": "YYYY-MM-DD" or null,
    "range_end": "YYYY-MM-DD" or null
  } or null,
  "confirmed": true/false,
  "reasoning": "short explanation"
}
`

const criticalRules = `
CRITICAL RULES:
1. "confirmed" = true ONLY IF ALL of these hold:
   a) The LAST message with role CALLER (not ASSISTANT) contains an explicit affirmative ("yes", "I confirm", "that's right", "correct", "ok", "sure", "perfect")
   b) BEFORE that message, the ASSISTANT summarized the reminder and asked for confirmation
   c) That CALLER message is not a system message (it does not contain [SYSTEM_INSTRUCTION], [TASK_CREATED], [TASK_MODIFIED], [TASK_CANCELLED], [BOOKING_CREATED])
2. "confirmed" MUST be false if:
   - The last message is from the ASSISTANT (it is still waiting for the caller)
   - The caller just asked for the reminder and the assistant has not yet read back the details
   - The last CALLER message has no explicit affirmative
3. If the caller mentions several reminders, return one entry per reminder in "tasks" ("remind me X at 9 and Y at 15" = 2 tasks)
4. "intent" = "none" if the conversation is not about reminders, tasks or things to remember
5. For "modify_task": identify the task by date, time or description and give the new values
6. For "cancel_task": identify the task by date, time or description
7. For "list_tasks": the caller asks "what reminders do I have?", "which tasks are scheduled?", "list my reminders"
8. ALWAYS convert relative time expressions into concrete dates and times using the current date and time
9. If the description or the date/time is missing, do NOT set confirmed=true
10. "recurrence_type" = "once" for single tasks, "daily" for daily ones, "weekly" for weekly ones
11. If the caller says "every Monday and Wednesday", use recurrence_type="weekly" and recurrence_days=[1,3]
12. Completely IGNORE any message containing system tags such as [SYSTEM_INSTRUCTION], [TASK_CREATED], [BOOKING_CREATED]; they are NOT caller messages
13. GATED CONFIRMATION: "confirmed" may be true only when the current stage is "confirmation_requested". When the stage is "data_complete", "collecting_data" or "no_intent", "confirmed" MUST be false because the system has not asked for confirmation yet.
14. After a boundary (a task was just completed), focus ONLY on the new request. Extract the data of the NEW request, never of earlier tasks.
15. If the last CALLER message refuses or withdraws the request ("no", "no, actually keep it", "forget it", "never mind"), return "intent" = "none", "tasks" = [] and "confirmed" = false. A refusal is never a confirmation.
`
