package calls

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iambrandonn/vtask/internal/fsutil"
	"github.com/iambrandonn/vtask/internal/supervisor"
	"github.com/iambrandonn/vtask/internal/task"
)

// Outcome summarizes how a call left its reminders
type Outcome string

const (
	OutcomeIdle                Outcome = "idle"
	OutcomeCommitted           Outcome = "committed"
	OutcomePendingConfirmation Outcome = "pending_confirmation"
	OutcomeFailed              Outcome = "failed"
)

// Record is the persisted summary of a finished call
type Record struct {
	CallID     string     `json:"call_id"`
	TenantID   string     `json:"tenant_id"`
	Phone      string     `json:"phone"`
	Outcome    Outcome    `json:"outcome"`
	FinalStage task.Stage `json:"final_stage"`
	// PendingIntent is the intent still waiting on the caller when the call ended
	PendingIntent task.Intent `json:"pending_intent,omitempty"`
	CreatedIDs    []string    `json:"created_ids,omitempty"`
	Passes        int         `json:"passes"`
	Attempts      int         `json:"attempts"`
	LastError     string      `json:"last_error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       time.Time   `json:"ended_at"`
}

// NewRecord builds the record of a call from its final supervisor state
func NewRecord(p supervisor.Params, st supervisor.State, started, ended time.Time) *Record {
	r := &Record{
		CallID:     p.CallID,
		TenantID:   p.TenantID,
		Phone:      p.Phone,
		FinalStage: st.Stage,
		CreatedIDs: append([]string(nil), st.Meta.CreatedIDs...),
		Passes:     st.Meta.TotalTurns,
		Attempts:   st.Meta.Attempts,
		LastError:  st.Meta.LastError,
		StartedAt:  started.UTC(),
		EndedAt:    ended.UTC(),
	}

	switch {
	case st.Stage == task.StageConfirmationRequested:
		r.Outcome = OutcomePendingConfirmation
		r.PendingIntent = st.Intent
	case st.Stage == task.StageError:
		r.Outcome = OutcomeFailed
	case st.Boundary >= 0:
		r.Outcome = OutcomeCommitted
	default:
		r.Outcome = OutcomeIdle
	}
	return r
}

// RecordPath returns the standard path of a call record under dir
func RecordPath(dir, callID string) string {
	return filepath.Join(dir, callID+".json")
}

// SaveRecord writes a call record to disk atomically
func SaveRecord(r *Record, path string) error {
	return fsutil.AtomicWriteJSON(path, r)
}

// LoadRecord reads a call record from disk
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read call record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
	}
	return &r, nil
}
