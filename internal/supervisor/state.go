package supervisor

import (
	"fmt"
	"strings"

	"github.com/iambrandonn/vtask/internal/extract"
	"github.com/iambrandonn/vtask/internal/task"
)

// Metadata holds the bookkeeping counters of a supervisor
type Metadata struct {
	TurnsInState int
	TotalTurns   int
	// LastAnalyzedIndex is the transcript index of the last successful pass, -1 before any
	LastAnalyzedIndex int
	Attempts          int
	CreatedIDs        []string
	LastError         string
	// CommittedKeys are the intent keys of the creates committed on this call
	CommittedKeys []string
	// PendingFingerprint identifies the payload the caller was last asked to confirm
	PendingFingerprint string
	// RequestIndex is the transcript index at which the pending confirmation
	// was requested, -1 when none is pending
	RequestIndex int
}

// State is the per-call supervisor state
type State struct {
	Stage        task.Stage
	Mutating     bool
	Intent       task.Intent
	Drafts       []task.Draft
	ModifyTarget *task.ModifyTarget
	ListFilter   *task.ListFilter
	Confirmed    bool
	// Boundary is the index of the last turn consumed by a finished operation, -1 before any
	Boundary int
	Meta     Metadata
}

// NewState returns the state of a call that has not said anything yet
func NewState() State {
	return State{
		Stage:    task.StageNoIntent,
		Intent:   task.IntentNone,
		Boundary: -1,
		Meta:     Metadata{LastAnalyzedIndex: -1, RequestIndex: -1},
	}
}

// Clone returns a deep copy of s
func (s State) Clone() State {
	out := s
	out.Drafts = task.CloneDrafts(s.Drafts)
	if s.ModifyTarget != nil {
		t := *s.ModifyTarget
		out.ModifyTarget = &t
	}
	if s.ListFilter != nil {
		f := *s.ListFilter
		out.ListFilter = &f
	}
	out.Meta.CreatedIDs = append([]string(nil), s.Meta.CreatedIDs...)
	out.Meta.CommittedKeys = append([]string(nil), s.Meta.CommittedKeys...)
	return out
}

// resetIntent clears every intent-scoped field
func (s *State) resetIntent() {
	s.Intent = task.IntentNone
	s.Drafts = nil
	s.ModifyTarget = nil
	s.ListFilter = nil
	s.Confirmed = false
	s.Meta.TurnsInState = 0
	s.Meta.PendingFingerprint = ""
	s.Meta.RequestIndex = -1
}

// merge combines the current payload with a new extraction. A change of
// intent replaces the payload outright; the same intent keeps earlier values
// the model did not repeat.
func merge(cur State, r *extract.Result) ([]task.Draft, *task.ModifyTarget, *task.ListFilter) {
	if r == nil || r.Intent == task.IntentNone {
		return nil, nil, nil
	}
	if r.Intent != cur.Intent {
		return r.Tasks, r.ModifyTarget, r.ListFilter
	}

	drafts, target, filter := cur.Drafts, cur.ModifyTarget, cur.ListFilter
	if len(r.Tasks) > 0 {
		drafts = r.Tasks
	}
	if r.ModifyTarget != nil {
		target = r.ModifyTarget
	}
	if r.ListFilter != nil {
		filter = r.ListFilter
	}
	return drafts, target, filter
}

// ready reports whether intent has everything it needs to be executed
func ready(intent task.Intent, drafts []task.Draft, target *task.ModifyTarget) bool {
	switch intent {
	case task.IntentCreate:
		return task.AllComplete(drafts)
	case task.IntentModify, task.IntentCancel:
		return target.Resolved()
	default:
		return false
	}
}

// ComputeStage returns the stage that follows cur given extraction r. It is
// pure: the same inputs always give the same stage.
func ComputeStage(cur State, r *extract.Result) task.Stage {
	if r == nil || r.Intent == task.IntentNone {
		return task.StageNoIntent
	}
	drafts, target, _ := merge(cur, r)

	if cur.Stage == task.StageConfirmationRequested {
		if r.Intent != cur.Intent {
			return task.StageNoIntent
		}
		if r.Confirmed && ready(r.Intent, drafts, target) {
			return task.StageConfirmed
		}
		return task.StageConfirmationRequested
	}

	switch r.Intent {
	case task.IntentList:
		return task.StageCollectingData
	case task.IntentCreate, task.IntentModify, task.IntentCancel:
		if ready(r.Intent, drafts, target) {
			return task.StageDataComplete
		}
	}
	return task.StageCollectingData
}

// NextState applies extraction r to cur and returns the resulting state.
// DataComplete is escalated to ConfirmationRequested once there is something
// to read back, and a confirmation whose payload differs from the one read
// back to the caller is turned into a fresh confirmation request.
func NextState(cur State, r *extract.Result) State {
	if r == nil {
		r = &extract.Result{Intent: task.IntentNone}
	}
	next := cur.Clone()
	next.Meta.TotalTurns++
	next.Meta.TurnsInState++

	stage := ComputeStage(cur, r)
	drafts, target, filter := merge(cur, r)

	next.Intent = r.Intent
	next.Drafts = task.CloneDrafts(drafts)
	next.ModifyTarget = nil
	if target != nil {
		t := *target
		next.ModifyTarget = &t
	}
	next.ListFilter = nil
	if filter != nil {
		f := *filter
		next.ListFilter = &f
	}
	next.Confirmed = r.Confirmed && cur.Stage == task.StageConfirmationRequested

	switch stage {
	case task.StageDataComplete, task.StageConfirmationRequested, task.StageConfirmed:
		// a modify that names the task but no new value waits for the change
		if next.Intent == task.IntentModify && !next.ModifyTarget.HasChanges() {
			stage = task.StageDataComplete
			next.Confirmed = false
		} else if stage == task.StageDataComplete {
			stage = task.StageConfirmationRequested
		}
	}

	switch stage {
	case task.StageConfirmationRequested:
		next.Meta.PendingFingerprint = fingerprint(next)
	case task.StageConfirmed:
		if fp := fingerprint(next); fp != cur.Meta.PendingFingerprint {
			stage = task.StageConfirmationRequested
			next.Confirmed = false
			next.Meta.PendingFingerprint = fp
		}
	default:
		next.Meta.PendingFingerprint = ""
		next.Meta.RequestIndex = -1
	}
	if stage == task.StageNoIntent {
		next.Confirmed = false
	}

	if stage != cur.Stage {
		next.Meta.TurnsInState = 0
	}
	next.Stage = stage
	return next
}

// fingerprint identifies the operation a confirmation covers. Wording-only
// differences in descriptions do not change it.
func fingerprint(s State) string {
	var sb strings.Builder
	sb.WriteString(string(s.Intent))
	switch s.Intent {
	case task.IntentCreate:
		for _, d := range s.Drafts {
			fmt.Fprintf(&sb, "|%s,%s,%s,%s,%v,%s", normalize(d.Description), d.Date, d.Time,
				d.Recurrence, d.RecurrenceDays, d.RecurrenceEndDate)
		}
	case task.IntentModify, task.IntentCancel:
		if m := s.ModifyTarget; m != nil {
			fmt.Fprintf(&sb, "|%s,%s,%s,%s|%s,%s,%s", m.SearchBy, m.OriginalDate, m.OriginalTime,
				normalize(m.OriginalDescription), m.NewDate, m.NewTime, normalize(m.NewDescription))
		}
	}
	return sb.String()
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
