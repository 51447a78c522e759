package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/vtask/internal/supervisor"
	"github.com/iambrandonn/vtask/internal/task"
	"github.com/iambrandonn/vtask/internal/transcript"
)

var (
	// ErrCallExists is returned by Start for a call id that is already live
	ErrCallExists = errors.New("call already started")

	// ErrUnknownCall is returned for a call id that was never started or has ended
	ErrUnknownCall = errors.New("unknown call")
)

// Notifier delivers the caller-facing outcome of a pass to the voice agent
type Notifier interface {
	Notify(ctx context.Context, callID string, res supervisor.Result) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, callID string, res supervisor.Result) error

func (f NotifierFunc) Notify(ctx context.Context, callID string, res supervisor.Result) error {
	return f(ctx, callID, res)
}

// Options configures a Manager
type Options struct {
	// Deps is the template every call's supervisor is built from
	Deps     supervisor.Deps
	Notifier Notifier
	// RecordDir receives one JSON record per ended call. Empty disables records.
	RecordDir string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager owns the live calls. Each call gets its own supervisor and a
// goroutine that runs its analysis passes one at a time.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	params  supervisor.Params
	sup     *supervisor.Supervisor
	pending chan []transcript.Turn
	stop    chan struct{}
	done    chan struct{}
	started time.Time
}

// NewManager creates a Manager
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Deps.Logger == nil {
		opts.Deps.Logger = opts.Logger
	}
	return &Manager{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*session),
	}
}

// Start begins supervising a call. An empty CallID gets a generated one.
// Passes run with ctx; cancelling it aborts in-flight model calls.
func (m *Manager) Start(ctx context.Context, p supervisor.Params) (string, error) {
	if p.CallID == "" {
		p.CallID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[p.CallID]; ok {
		return "", fmt.Errorf("%w: %s", ErrCallExists, p.CallID)
	}

	s := &session{
		params:  p,
		sup:     supervisor.New(p, m.opts.Deps),
		pending: make(chan []transcript.Turn, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		started: m.opts.Now(),
	}
	m.sessions[p.CallID] = s
	go m.run(ctx, s)

	m.logger.Info("call started", "call_id", p.CallID, "tenant_id", p.TenantID)
	return p.CallID, nil
}

// Trigger hands the latest transcript to the call's supervisor without
// blocking. A transcript still waiting for its pass is replaced, since the
// newer one contains it.
func (m *Manager) Trigger(callID string, turns []transcript.Turn) error {
	s, ok := m.session(callID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}

	for {
		select {
		case s.pending <- turns:
			return nil
		default:
		}
		select {
		case <-s.pending:
			m.logger.Debug("coalescing transcript trigger", "call_id", callID, "turns", len(turns))
		default:
		}
	}
}

// Snapshot returns the current supervisor state of a live call
func (m *Manager) Snapshot(callID string) (supervisor.State, error) {
	s, ok := m.session(callID)
	if !ok {
		return supervisor.State{}, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	return s.sup.Snapshot(), nil
}

// Active returns the ids of the live calls, sorted
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// End stops supervising a call and discards its state. A pass already
// running is allowed to finish so a confirmed write is never cut short.
func (m *Manager) End(callID string) (*Record, error) {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}

	close(s.stop)
	<-s.done

	rec := NewRecord(s.params, s.sup.Snapshot(), s.started, m.opts.Now())
	m.logger.Info("call ended",
		"call_id", callID,
		"outcome", rec.Outcome,
		"final_stage", rec.FinalStage,
		"created", len(rec.CreatedIDs))
	if rec.Outcome == OutcomePendingConfirmation {
		m.logger.Warn("call ended while a confirmation was pending", "call_id", callID, "intent", rec.PendingIntent)
	}

	if m.opts.RecordDir != "" {
		if err := SaveRecord(rec, RecordPath(m.opts.RecordDir, callID)); err != nil {
			return rec, fmt.Errorf("failed to save call record: %w", err)
		}
	}
	return rec, nil
}

// Close ends every live call
func (m *Manager) Close() error {
	var errs []error
	for _, id := range m.Active() {
		if _, err := m.End(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) session(callID string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	return s, ok
}

func (m *Manager) run(ctx context.Context, s *session) {
	defer close(s.done)
	logger := m.logger.With("call_id", s.params.CallID)

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case turns := <-s.pending:
			res := s.sup.Analyze(ctx, turns)
			if res.Action == task.ActionNone || m.opts.Notifier == nil {
				continue
			}
			if err := m.opts.Notifier.Notify(ctx, s.params.CallID, res); err != nil {
				logger.Warn("failed to deliver notification", "action", res.Action, "error", err)
			}
		}
	}
}
