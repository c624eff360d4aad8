// Package active holds the live projection of the one session the client is
// currently tracking in detail. The model is not keyed by check id: it always
// represents "the focused job", which may differ from the check the user is
// looking at.
package active

import (
	"fmt"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/log"
)

// Phase is the status machine of the focused job.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseChecking  Phase = "checking"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseError     Phase = "error"
)

// IsTerminal reports whether the phase ends the job.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseError
}

// LedgerStatus maps a phase onto the ledger's record status.
func (p Phase) LedgerStatus() domain.Status {
	switch p {
	case PhaseChecking:
		return domain.StatusInProgress
	case PhaseCompleted:
		return domain.StatusCompleted
	case PhaseCancelled:
		return domain.StatusCancelled
	case PhaseError:
		return domain.StatusError
	default:
		return domain.StatusIdle
	}
}

// PhaseFor maps a ledger status onto a phase.
func PhaseFor(s domain.Status) Phase {
	switch s {
	case domain.StatusInProgress:
		return PhaseChecking
	case domain.StatusCompleted:
		return PhaseCompleted
	case domain.StatusCancelled:
		return PhaseCancelled
	case domain.StatusError:
		return PhaseError
	default:
		return PhaseIdle
	}
}

// State is an immutable snapshot of the model.
type State struct {
	CheckID       domain.CheckID
	Session       domain.SessionID
	Phase         Phase
	PaperTitle    string
	Source        domain.Source
	StatusMessage string
	ErrorMessage  string
	ErrorDetails  string
	Stats         domain.Stats
	References    []domain.Reference
	// Connection holds the last transport error, cleared by the next event.
	Connection string
}

// HasLiveData reports whether any event has populated the model.
func (s State) HasLiveData() bool {
	return s.Phase != PhaseIdle && (len(s.References) > 0 || s.Stats.TotalRefs > 0 || s.Phase.IsTerminal())
}

// Model is the focused-job state. It is not safe for concurrent use; the
// tracker serializes access.
type Model struct {
	state State
}

// New returns an idle model.
func New() *Model {
	return &Model{state: State{Phase: PhaseIdle}}
}

// Reset starts tracking a fresh job. This is the only way out of a terminal
// phase.
func (m *Model) Reset(checkID domain.CheckID, session domain.SessionID, source domain.Source) {
	m.state = State{
		CheckID:       checkID,
		Session:       session,
		Phase:         PhaseChecking,
		Source:        source,
		StatusMessage: "Starting check...",
	}
}

// Clear returns the model to idle, tracking nothing.
func (m *Model) Clear() {
	m.state = State{Phase: PhaseIdle}
}

// LoadFrom seeds the model from a ledger record when focus moves to a job
// whose earlier events were applied to the ledger only.
func (m *Model) LoadFrom(rec *domain.Record) {
	m.state = State{
		CheckID:       rec.ID,
		Session:       rec.Session,
		Phase:         PhaseFor(rec.Status),
		PaperTitle:    rec.Title,
		Source:        rec.Source,
		StatusMessage: rec.StatusMessage,
		ErrorMessage:  rec.ErrorMessage,
		Stats:         rec.Stats,
		References:    domain.CloneReferences(rec.References),
	}
	if m.state.Phase == PhaseIdle {
		m.state.Phase = PhaseChecking
	}
}

// Tracking returns the check id the model represents (0 when idle).
func (m *Model) Tracking() domain.CheckID {
	return m.state.CheckID
}

// Snapshot returns a deep copy of the current state.
func (m *Model) Snapshot() State {
	s := m.state
	s.References = domain.CloneReferences(m.state.References)
	return s
}

// Change describes what an applied event changed, for mirroring into the
// ledger.
type Change struct {
	StatusChanged bool
	TitleChanged  bool
	StatsChanged  bool
	RefsChanged   bool
	// RefIndex is the single reference touched, or -1.
	RefIndex int
	Ignored  bool
}

// Apply folds one focused-session event into the model.
func (m *Model) Apply(ev events.Event) Change {
	a := applier{m: m, change: Change{RefIndex: -1}}
	if _, isConn := ev.(events.ConnectionError); !isConn {
		m.state.Connection = ""
	}
	events.Visit(ev, &a)
	return a.change
}

// applier implements events.Visitor against a Model.
type applier struct {
	m      *Model
	change Change
}

func (a *applier) enterChecking(message, title string) {
	s := &a.m.state
	if s.Phase.IsTerminal() {
		log.Debug(log.CatActive, "ignoring progress event after terminal phase", "phase", s.Phase, "check", s.CheckID)
		a.change.Ignored = true
		return
	}
	if s.Phase != PhaseChecking {
		s.Phase = PhaseChecking
		a.change.StatusChanged = true
	}
	if message != "" {
		s.StatusMessage = message
	}
	if title != "" && title != s.PaperTitle {
		s.PaperTitle = title
		a.change.TitleChanged = true
	}
}

func (a *applier) terminal(p Phase) bool {
	s := &a.m.state
	if s.Phase.IsTerminal() && s.Phase != p {
		log.Warn(log.CatActive, "rejecting transition between terminal phases", "from", s.Phase, "to", p, "check", s.CheckID)
		a.change.Ignored = true
		return false
	}
	a.change.StatusChanged = s.Phase != p
	s.Phase = p
	return true
}

func (a *applier) Started(e events.Started) {
	a.enterChecking(e.Message, e.PaperTitle)
}

func (a *applier) Extracting(e events.Extracting) {
	a.enterChecking(e.Message, e.PaperTitle)
}

func (a *applier) ReferencesExtracted(e events.ReferencesExtracted) {
	s := &a.m.state
	a.enterChecking("", "")
	if a.change.Ignored {
		return
	}
	refs := make([]domain.Reference, len(e.References))
	for i, ref := range e.References {
		ref.Status = domain.RefPending
		refs[i] = ref
	}
	s.References = domain.CloneReferences(refs)
	s.Stats.TotalRefs = e.TotalRefs
	s.Stats.ProcessedRefs = 0
	s.StatusMessage = fmt.Sprintf("Found %d references", e.TotalRefs)
	a.change.RefsChanged = true
	a.change.StatsChanged = true
}

func (a *applier) CheckingReference(e events.CheckingReference) {
	s := &a.m.state
	if !a.inRange(e.Index) {
		return
	}
	ref := &s.References[e.Index]
	if ref.Status.IsResolved() {
		// A late "checking" never downgrades a resolved reference.
		a.change.Ignored = true
		return
	}
	ref.Status = domain.RefChecking
	if e.Title != "" && ref.Title == "" {
		ref.Title = e.Title
	}
	a.change.RefsChanged = true
	a.change.RefIndex = e.Index
}

func (a *applier) ReferenceResult(e events.ReferenceResult) {
	s := &a.m.state
	if !a.inRange(e.Index) {
		return
	}
	s.References[e.Index] = s.References[e.Index].Merge(e.Result)
	a.change.RefsChanged = true
	a.change.RefIndex = e.Index
}

func (a *applier) SummaryUpdate(e events.SummaryUpdate) {
	s := &a.m.state
	if s.Phase.IsTerminal() {
		a.change.Ignored = true
		return
	}
	s.Stats = e.Stats
	s.StatusMessage = fmt.Sprintf("Checked %d of %d references", e.Stats.ProcessedRefs, e.Stats.TotalRefs)
	a.change.StatsChanged = true
}

func (a *applier) Completed(e events.Completed) {
	s := &a.m.state
	if !a.terminal(PhaseCompleted) {
		return
	}
	if e.CheckID != 0 {
		s.CheckID = e.CheckID
	}
	stats := e.Stats
	if stats.TotalRefs == 0 {
		stats.TotalRefs = s.Stats.TotalRefs
	}
	stats.ProcessedRefs = stats.TotalRefs
	stats.ProgressPercent = 100
	s.Stats = stats
	s.StatusMessage = "Check completed"
	a.change.StatsChanged = true
}

func (a *applier) Cancelled(e events.Cancelled) {
	if !a.terminal(PhaseCancelled) {
		return
	}
	msg := e.Message
	if msg == "" {
		msg = "Check cancelled"
	}
	a.m.state.StatusMessage = msg
}

func (a *applier) Error(e events.Error) {
	if !a.terminal(PhaseError) {
		return
	}
	s := &a.m.state
	s.ErrorMessage = e.Message
	s.ErrorDetails = e.Details
	s.StatusMessage = "Check failed"
}

func (a *applier) ConnectionError(e events.ConnectionError) {
	a.m.state.Connection = e.Message
}

func (a *applier) Closed(events.Closed) {
	a.change.Ignored = true
}

func (a *applier) Unknown(e events.Unknown) {
	log.Warn(log.CatActive, "ignoring unknown event kind", "kind", e.RawKind, "session", e.SessionID)
	a.change.Ignored = true
}

func (a *applier) inRange(i int) bool {
	if i < 0 || i >= len(a.m.state.References) {
		log.Warn(log.CatActive, "reference index out of range", "index", i, "refs", len(a.m.state.References), "check", a.m.state.CheckID)
		a.change.Ignored = true
		return false
	}
	return true
}
