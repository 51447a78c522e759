package calls

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/iambrandonn/vtask/internal/supervisor"
	"github.com/iambrandonn/vtask/internal/task"
)

func TestNewRecordOutcome(t *testing.T) {
	started := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	ended := started.Add(3 * time.Minute)

	committed := supervisor.NewState()
	committed.Stage = task.StageNoIntent
	committed.Boundary = 4
	committed.Meta.CreatedIDs = []string{"t1"}

	pending := supervisor.NewState()
	pending.Stage = task.StageConfirmationRequested
	pending.Intent = task.IntentCancel

	failed := supervisor.NewState()
	failed.Stage = task.StageError
	failed.Meta.LastError = "disk full"

	tests := []struct {
		name  string
		state supervisor.State
		want  Outcome
	}{
		{"idle", supervisor.NewState(), OutcomeIdle},
		{"committed", committed, OutcomeCommitted},
		{"pending", pending, OutcomePendingConfirmation},
		{"failed", failed, OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(callParams, tt.state, started, ended)
			if rec.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", rec.Outcome, tt.want)
			}
			if !rec.EndedAt.Equal(ended) {
				t.Errorf("EndedAt = %v, want %v", rec.EndedAt, ended)
			}
		})
	}

	rec := NewRecord(callParams, pending, started, ended)
	if rec.PendingIntent != task.IntentCancel {
		t.Errorf("PendingIntent = %s, want %s", rec.PendingIntent, task.IntentCancel)
	}
}

func TestSaveAndLoadRecord(t *testing.T) {
	path := RecordPath(filepath.Join(t.TempDir(), "calls"), "call-7")

	original := &Record{
		CallID:     "call-7",
		TenantID:   "tenant-1",
		Phone:      "+390612345",
		Outcome:    OutcomeCommitted,
		FinalStage: task.StageCompleted,
		CreatedIDs: []string{"t1", "t2"},
		Passes:     5,
		StartedAt:  time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		EndedAt:    time.Date(2026, 10, 19, 8, 4, 0, 0, time.UTC),
	}

	if err := SaveRecord(original, path); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	loaded, err := LoadRecord(path)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}

	if loaded.CallID != original.CallID {
		t.Errorf("CallID = %s, want %s", loaded.CallID, original.CallID)
	}
	if len(loaded.CreatedIDs) != 2 || loaded.CreatedIDs[1] != "t2" {
		t.Errorf("CreatedIDs = %v, want %v", loaded.CreatedIDs, original.CreatedIDs)
	}
	if !loaded.StartedAt.Equal(original.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", loaded.StartedAt, original.StartedAt)
	}
}

func TestLoadRecordMissing(t *testing.T) {
	if _, err := LoadRecord(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing record")
	}
}
