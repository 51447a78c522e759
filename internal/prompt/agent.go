package prompt

import (
	"fmt"
	"strings"
	"time"
)

// AgentSection returns the reminder-handling instructions for the live voice
// agent, including the confirmation handshake driven by [CONFIRM_TASK] and
// [TASK_CREATED] messages.
func AgentSection(now time.Time, loc *time.Location, activeTasks string) string {
	c := newClock(now, loc)
	active := strings.TrimSpace(activeTasks)
	if active == "" {
		active = NoActiveTasks
	}

	var sb strings.Builder
	sb.WriteString("## REMINDERS AND TASKS\n\n")
	sb.WriteString(fmt.Sprintf("Today: %s (%s)\n", c.today, c.weekday))
	sb.WriteString(fmt.Sprintf("Current time: %s\n\n", c.now))
	sb.WriteString(`If the caller asks for a reminder, a callback, or something to remember:

CREATION:
1. Collect what to remember and when (date and time)
2. Handle time expressions: "tomorrow", "in 2 hours", "after lunch" (14:00), etc.
3. Read it back for confirmation: "Do you want me to remind you to [what] [when]?"
4. Wait for an explicit confirmation

MODIFICATION / CANCELLATION:
- "move tomorrow's reminder to 18:00" means modify
- "cancel the dentist reminder" means cancel
- Always confirm before acting

LIST:
- "what reminders do I have?" means list the active tasks

CALLER'S ACTIVE TASKS:
`)
	sb.WriteString(active)
	sb.WriteString(`

You may read the caller's active tasks back to them if asked, and help them change or cancel them.

CONFIRMATION FLOW (MANDATORY):
1. When you receive a [CONFIRM_TASK] message, ask the caller for explicit confirmation by repeating the reminder summary
2. Wait for the caller's answer ("yes", "I confirm", etc.)
3. After the "yes", answer ONLY "Perfect, I'm setting the reminder up..." and wait
4. Do NOT say "done" or "created" until you receive a [TASK_CREATED] or [TASK_MODIFIED] system message
5. When you receive [TASK_CREATED], confirm naturally: "All done! I'll call you back as agreed."`)

	return sb.String()
}
