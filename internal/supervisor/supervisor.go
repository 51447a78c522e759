package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iambrandonn/vtask/internal/audit"
	"github.com/iambrandonn/vtask/internal/executor"
	"github.com/iambrandonn/vtask/internal/extract"
	"github.com/iambrandonn/vtask/internal/idempotency"
	"github.com/iambrandonn/vtask/internal/prompt"
	"github.com/iambrandonn/vtask/internal/task"
	"github.com/iambrandonn/vtask/internal/transcript"
)

// DefaultMaxRecentTurns caps how much of the transcript one prompt shows
const DefaultMaxRecentTurns = 12

// Extractor reads intent out of a prompt
type Extractor interface {
	Extract(ctx context.Context, prompt string) (*extract.Result, error)
}

// Executor performs task operations
type Executor interface {
	Create(ctx context.Context, c executor.Caller, key string, drafts []task.Draft) (*executor.CreateResult, error)
	Modify(ctx context.Context, c executor.Caller, target *task.ModifyTarget) (*executor.ChangeResult, error)
	Cancel(ctx context.Context, c executor.Caller, target *task.ModifyTarget) (*executor.ChangeResult, error)
	List(ctx context.Context, c executor.Caller, filter *task.ListFilter) (*executor.ListResult, error)
	ActiveSummary(ctx context.Context, c executor.Caller) (string, error)
}

// Auditor records one entry per analysis pass
type Auditor interface {
	Record(e *audit.Entry) error
}

// Params identify the call a supervisor belongs to
type Params struct {
	CallID      string
	TenantID    string
	Phone       string
	ContactName string
}

// Deps are the collaborators of a supervisor
type Deps struct {
	Extractor      Extractor
	Executor       Executor
	Auditor        Auditor
	Logger         *slog.Logger
	Location       *time.Location
	Now            func() time.Time
	MaxRecentTurns int
}

// Result is the outcome of one analysis pass
type Result struct {
	Action          task.Action
	CreatedIDs      []string
	ModifiedID      string
	CancelledID     string
	TaskList        string
	ErrorMessage    string
	NotifyMessage   string
	ConflictWarning string
}

func none() Result {
	return Result{Action: task.ActionNone}
}

// Supervisor is the per-call conversational state machine. Analyze may be
// called from any goroutine; overlapping passes are dropped, not queued.
type Supervisor struct {
	params    Params
	caller    executor.Caller
	extractor Extractor
	exec      Executor
	auditor   Auditor
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
	maxRecent int

	// pass is held for the whole of one analysis pass
	pass sync.Mutex
	// mutating is held while the executor commits
	mutating atomic.Bool

	stateMu sync.Mutex
	state   State
}

// New creates a supervisor for one call
func New(p Params, d Deps) *Supervisor {
	s := &Supervisor{
		params:    p,
		caller:    executor.Caller{TenantID: p.TenantID, Phone: p.Phone, ContactName: p.ContactName},
		extractor: d.Extractor,
		exec:      d.Executor,
		auditor:   d.Auditor,
		logger:    d.Logger,
		loc:       d.Location,
		now:       d.Now,
		maxRecent: d.MaxRecentTurns,
		state:     NewState(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("call_id", p.CallID)
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxRecent <= 0 {
		s.maxRecent = DefaultMaxRecentTurns
	}
	return s
}

// CallID returns the id of the call this supervisor serves
func (s *Supervisor) CallID() string {
	return s.params.CallID
}

// Snapshot returns a copy of the current state
func (s *Supervisor) Snapshot() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.Clone()
}

func (s *Supervisor) setState(st State) {
	s.stateMu.Lock()
	s.state = st.Clone()
	s.stateMu.Unlock()
}

// Analyze runs one analysis pass over the full transcript so far
func (s *Supervisor) Analyze(ctx context.Context, turns []transcript.Turn) Result {
	if !s.pass.TryLock() {
		s.logger.Debug("analysis pass already running, dropping trigger", "turns", len(turns))
		return none()
	}
	defer s.pass.Unlock()

	if s.mutating.Load() {
		s.logger.Debug("task operation in progress, skipping")
		return none()
	}

	cur := s.Snapshot()
	switch cur.Stage {
	case task.StageCompleted:
		cur.Stage = task.StageNoIntent
		s.setState(cur)
	case task.StageError:
		s.logger.Info("recovering from error stage", "last_error", cur.Meta.LastError)
		cur.resetIntent()
		cur.Stage = task.StageNoIntent
		s.setState(cur)
	}

	last := len(turns) - 1
	if last <= cur.Meta.LastAnalyzedIndex {
		return none()
	}

	window := transcript.Tail(transcript.After(turns, cur.Boundary), s.maxRecent)
	if len(window) == 0 {
		return none()
	}

	active, err := s.exec.ActiveSummary(ctx, s.caller)
	if err != nil {
		s.logger.Warn("failed to load active tasks for prompt", "error", err)
	}

	p := prompt.Build(prompt.Input{
		Now:      s.now(),
		Location: s.loc,
		State: prompt.Snapshot{
			Stage:        cur.Stage,
			Intent:       cur.Intent,
			Confirmed:    cur.Confirmed,
			Drafts:       cur.Drafts,
			ModifyTarget: cur.ModifyTarget,
		},
		ActiveTasks:   active,
		Turns:         window,
		AfterBoundary: cur.Boundary >= 0,
	})

	r, err := s.extractor.Extract(ctx, p)
	if err != nil {
		s.logger.Warn("extraction failed, waiting for the next turn", "error", err, "turns", len(turns))
		return none()
	}

	next := NextState(cur, r)
	next.Meta.LastAnalyzedIndex = last
	if next.Stage == task.StageConfirmed && transcript.LastCallerIndex(turns) <= cur.Meta.RequestIndex {
		// only the caller, speaking after the request, can confirm
		s.logger.Warn("ignoring confirmation without a caller turn after the request",
			"request_index", cur.Meta.RequestIndex, "last_turn", last)
		next.Stage = task.StageConfirmationRequested
		next.Confirmed = false
		next.Meta.TurnsInState = cur.Meta.TurnsInState + 1
	}
	if next.Stage == task.StageConfirmationRequested && next.Meta.PendingFingerprint != cur.Meta.PendingFingerprint {
		next.Meta.RequestIndex = last
	}
	s.setState(next)

	entry := &audit.Entry{
		CallID:          s.params.CallID,
		Turn:            next.Meta.TotalTurns,
		StageBefore:     cur.Stage,
		IntentBefore:    cur.Intent,
		ConfirmedBefore: cur.Confirmed,
		IntentAfter:     next.Intent,
		ConfirmedAfter:  next.Confirmed,
		TasksCount:      len(next.Drafts),
		Reasoning:       r.Reasoning,
	}

	var res Result
	switch {
	case next.Stage == task.StageConfirmed:
		next, res = s.commit(ctx, next, last)

	case next.Stage == task.StageConfirmationRequested && next.Meta.PendingFingerprint != cur.Meta.PendingFingerprint:
		res = Result{Action: task.ActionConfirmRequest, NotifyMessage: ConfirmationRequest(next)}
		s.logger.Info("confirmation requested", "intent", next.Intent, "tasks", len(next.Drafts))

	case next.Intent == task.IntentList && next.Stage == task.StageCollectingData:
		next, res = s.list(ctx, next, last)

	default:
		res = none()
	}

	entry.StageAfter = next.Stage
	entry.Action = res.Action
	if s.auditor != nil {
		if err := s.auditor.Record(entry); err != nil {
			s.logger.Warn("failed to record audit entry", "error", err)
		}
	}
	return res
}

// commit runs the confirmed operation inside the mutating region. The region
// is released on every exit path.
func (s *Supervisor) commit(ctx context.Context, st State, last int) (State, Result) {
	if !s.mutating.CompareAndSwap(false, true) {
		return st, none()
	}
	defer func() {
		s.stateMu.Lock()
		s.state.Mutating = false
		s.stateMu.Unlock()
		s.mutating.Store(false)
	}()
	st.Mutating = true
	s.setState(st)

	res, err := s.dispatch(ctx, &st)
	st.Mutating = false

	switch {
	case err == nil:
		st.Stage = task.StageCompleted
		st.Boundary = last
		st.Meta.LastError = ""
		st.resetIntent()
		s.logger.Info("task operation completed", "action", res.Action, "boundary", last)

	case errors.Is(err, executor.ErrNotFound):
		st.Stage = task.StageError
		st.Meta.LastError = err.Error()
		st.Confirmed = false
		res = Result{
			Action:        task.ActionTaskFailed,
			ErrorMessage:  err.Error(),
			NotifyMessage: notFoundMessage,
		}
		s.logger.Info("no task matched", "error", err)

	default:
		st.Stage = task.StageError
		st.Meta.Attempts++
		st.Meta.LastError = err.Error()
		st.Confirmed = false
		res = Result{
			Action:        task.ActionTaskFailed,
			ErrorMessage:  err.Error(),
			NotifyMessage: failedMessage,
		}
		s.logger.Error("task operation failed", "intent", st.Intent, "attempts", st.Meta.Attempts, "error", err)
	}

	s.setState(st)
	return st, res
}

func (s *Supervisor) dispatch(ctx context.Context, st *State) (Result, error) {
	switch st.Intent {
	case task.IntentCreate:
		key, err := idempotency.IntentKey(s.params.CallID, string(st.Intent), st.Drafts)
		if err != nil {
			return Result{}, fmt.Errorf("failed to compute intent key: %w", err)
		}
		out, err := s.exec.Create(ctx, s.caller, key, st.Drafts)
		if err != nil {
			return Result{}, err
		}
		if !out.Replayed {
			st.Meta.CreatedIDs = append(st.Meta.CreatedIDs, out.IDs...)
			st.Meta.CommittedKeys = append(st.Meta.CommittedKeys, key)
		}
		return Result{
			Action:          task.ActionTasksCreated,
			CreatedIDs:      out.IDs,
			NotifyMessage:   out.Message,
			ConflictWarning: out.ConflictWarning,
		}, nil

	case task.IntentModify:
		out, err := s.exec.Modify(ctx, s.caller, st.ModifyTarget)
		if err != nil {
			return Result{}, err
		}
		return Result{Action: task.ActionTaskModified, ModifiedID: out.TaskID, NotifyMessage: out.Message}, nil

	case task.IntentCancel:
		out, err := s.exec.Cancel(ctx, s.caller, st.ModifyTarget)
		if err != nil {
			return Result{}, err
		}
		return Result{Action: task.ActionTaskCancelled, CancelledID: out.TaskID, NotifyMessage: out.Message}, nil
	}

	return Result{}, fmt.Errorf("intent %q cannot be committed", st.Intent)
}

// list answers a list request straight away. Nothing is written, so it runs
// outside the mutating region and needs no confirmation.
func (s *Supervisor) list(ctx context.Context, st State, last int) (State, Result) {
	out, err := s.exec.List(ctx, s.caller, st.ListFilter)
	if err != nil {
		st.Stage = task.StageError
		st.Meta.Attempts++
		st.Meta.LastError = err.Error()
		s.setState(st)
		s.logger.Error("listing tasks failed", "error", err)
		return st, Result{Action: task.ActionTaskFailed, ErrorMessage: err.Error(), NotifyMessage: failedMessage}
	}

	st.Stage = task.StageCompleted
	st.Boundary = last
	st.resetIntent()
	s.setState(st)
	s.logger.Info("tasks listed", "count", len(out.Tasks))

	return st, Result{Action: task.ActionTasksListed, TaskList: out.Text, NotifyMessage: out.Message}
}
