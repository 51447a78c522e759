package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/iambrandonn/vtask/internal/ndjson"
)

// Role identifies who spoke a turn
type Role string

const (
	RoleCaller    Role = "caller"
	RoleAssistant Role = "assistant"
)

// UnmarshalJSON accepts "user" as an alias for the caller
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caller", "user":
		*r = RoleCaller
	case "assistant", "agent", "model":
		*r = RoleAssistant
	default:
		return fmt.Errorf("unknown transcript role %q", s)
	}
	return nil
}

// Turn is one utterance of the live conversation
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// systemTags mark messages injected by the platform rather than spoken by a person
var systemTags = []string{
	"[SYSTEM_INSTRUCTION]",
	"[CONFIRM_TASK]",
	"[TASK_CREATED]",
	"[TASK_MODIFIED]",
	"[TASK_CANCELLED]",
	"[TASK_LIST]",
	"[TASK_NOT_FOUND]",
	"[TASK_FAILED]",
	"[BOOKING_CREATED]",
}

// IsSystemTagged reports whether text carries a platform control tag
func IsSystemTagged(text string) bool {
	for _, tag := range systemTags {
		if strings.Contains(text, tag) {
			return true
		}
	}
	return false
}

// After returns the turns strictly after index boundary. A negative boundary returns all turns.
func After(turns []Turn, boundary int) []Turn {
	if boundary < 0 {
		return turns
	}
	if boundary+1 >= len(turns) {
		return nil
	}
	return turns[boundary+1:]
}

// Tail returns at most the last n turns
func Tail(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// LastCallerIndex returns the index of the most recent caller turn that is
// not system-tagged, or -1
func LastCallerIndex(turns []Turn) int {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleCaller && !IsSystemTagged(turns[i].Text) {
			return i
		}
	}
	return -1
}

// Format renders turns one per line for inclusion in a prompt.
// System-tagged turns are labelled SYSTEM whoever they came from.
func Format(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		label := "ASSISTANT"
		switch {
		case IsSystemTagged(t.Text):
			label = "SYSTEM"
		case t.Role == RoleCaller:
			label = "CALLER"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(t.Text))
	}
	return sb.String()
}

// Load reads an NDJSON transcript file
func Load(path string, logger *slog.Logger) ([]Turn, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	turns, err := ndjson.ReadAll[Turn](file, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", path, err)
	}
	return turns, nil
}
