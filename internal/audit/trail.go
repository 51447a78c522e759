package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/vtask/internal/ndjson"
	"github.com/iambrandonn/vtask/internal/task"
)

// Entry is the before/after trace of one analysis pass
type Entry struct {
	ID              string      `json:"id"`
	Timestamp       time.Time   `json:"timestamp"`
	CallID          string      `json:"call_id"`
	Turn            int         `json:"turn"`
	StageBefore     task.Stage  `json:"stage_before"`
	StageAfter      task.Stage  `json:"stage_after"`
	IntentBefore    task.Intent `json:"intent_before"`
	IntentAfter     task.Intent `json:"intent_after"`
	ConfirmedBefore bool        `json:"confirmed_before"`
	ConfirmedAfter  bool        `json:"confirmed_after"`
	TasksCount      int         `json:"tasks_count"`
	Action          task.Action `json:"action,omitempty"`
	Reasoning       string      `json:"reasoning,omitempty"`
	Deltas          []string    `json:"deltas,omitempty"`
}

// StageChanged reports whether the pass moved the supervisor to a new stage
func (e *Entry) StageChanged() bool {
	return e.StageBefore != e.StageAfter
}

func (e *Entry) computeDeltas() []string {
	var deltas []string
	if e.StageBefore != e.StageAfter {
		deltas = append(deltas, fmt.Sprintf("stage: %s -> %s", e.StageBefore, e.StageAfter))
	}
	if e.IntentBefore != e.IntentAfter {
		deltas = append(deltas, fmt.Sprintf("intent: %s -> %s", e.IntentBefore, e.IntentAfter))
	}
	if e.ConfirmedBefore != e.ConfirmedAfter {
		deltas = append(deltas, fmt.Sprintf("confirmed: %t -> %t", e.ConfirmedBefore, e.ConfirmedAfter))
	}
	return deltas
}

// Trail records entries to the structured log and, when opened with a path,
// to an append-only NDJSON file
type Trail struct {
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewTrail creates a trail. An empty path records to the logger only.
func NewTrail(path string, logger *slog.Logger) (*Trail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trail{logger: logger}
	if path == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	t.file = file
	t.encoder = ndjson.NewEncoder(file, logger)
	return t, nil
}

// Record fills in the id, timestamp and deltas of e and writes it
func (t *Trail) Record(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Deltas = e.computeDeltas()

	t.logger.Info("supervisor audit",
		"call_id", e.CallID,
		"turn", e.Turn,
		"stage", fmt.Sprintf("%s -> %s", e.StageBefore, e.StageAfter),
		"intent", e.IntentAfter,
		"tasks", e.TasksCount,
		"confirmed", e.ConfirmedAfter,
		"action", e.Action,
		"deltas", e.Deltas,
		"reasoning", e.Reasoning)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.encoder == nil {
		return nil
	}
	if err := t.encoder.Encode(e); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the audit file, if any
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file != nil {
		err := t.file.Close()
		t.file = nil
		t.encoder = nil
		return err
	}
	return nil
}
