package audit

import (
	"fmt"
	"os"

	"github.com/iambrandonn/vtask/internal/ndjson"
	"github.com/iambrandonn/vtask/internal/task"
)

// Ledger is a parsed audit file
type Ledger struct {
	Entries []*Entry
}

// ReadTrail reads and parses an NDJSON audit file
func ReadTrail(path string) (*Ledger, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer file.Close()

	entries, err := ndjson.ReadAll[*Entry](file, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail %s: %w", path, err)
	}
	return &Ledger{Entries: entries}, nil
}

// Calls returns the distinct call ids in first-seen order
func (l *Ledger) Calls() []string {
	seen := make(map[string]bool)
	var calls []string
	for _, e := range l.Entries {
		if !seen[e.CallID] {
			seen[e.CallID] = true
			calls = append(calls, e.CallID)
		}
	}
	return calls
}

// ForCall returns the entries of one call in recorded order
func (l *Ledger) ForCall(callID string) []*Entry {
	out := make([]*Entry, 0)
	for _, e := range l.Entries {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out
}

// Commits returns the entries whose pass wrote to the store
func (l *Ledger) Commits() []*Entry {
	out := make([]*Entry, 0)
	for _, e := range l.Entries {
		if isCommit(e.Action) {
			out = append(out, e)
		}
	}
	return out
}

// PendingConfirmations returns, per call, the last entry when that call ended
// waiting on a caller confirmation that never came
func (l *Ledger) PendingConfirmations() map[string]*Entry {
	last := make(map[string]*Entry)
	for _, e := range l.Entries {
		last[e.CallID] = e
	}

	pending := make(map[string]*Entry)
	for callID, e := range last {
		if e.StageAfter == task.StageConfirmationRequested {
			pending[callID] = e
		}
	}
	return pending
}

func isCommit(a task.Action) bool {
	switch a {
	case task.ActionTasksCreated, task.ActionTaskModified, task.ActionTaskCancelled:
		return true
	default:
		return false
	}
}
