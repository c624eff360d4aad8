package ledger

import (
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/log"
)

// Result reports the outcome of applying an event to a record.
type Result struct {
	Applied bool
	// Terminal is true when the event moved the record into a terminal status.
	Terminal bool
}

// Apply folds an event from a non-focused session directly into the record
// for id. The record must already exist; the ledger never fabricates entries
// from events.
func (l *Ledger) Apply(id domain.CheckID, ev events.Event) (Result, error) {
	rec, ok := l.records[id]
	if !ok {
		return Result{}, &domain.CheckNotFoundError{ID: id}
	}
	a := recordApplier{l: l, rec: rec}
	events.Visit(ev, &a)
	return a.res, nil
}

// recordApplier implements events.Visitor for one ledger record.
type recordApplier struct {
	l   *Ledger
	rec *domain.Record
	res Result
}

func (a *recordApplier) progress(message, title string) {
	if a.rec.Status.IsTerminal() {
		log.Debug(log.CatLedger, "ignoring progress for terminal record", "check", a.rec.ID, "status", a.rec.Status)
		return
	}
	a.rec.Status = domain.StatusInProgress
	if message != "" {
		a.rec.StatusMessage = message
	}
	if title != "" {
		a.rec.Title = title
	}
	a.res.Applied = true
}

func (a *recordApplier) terminal(status domain.Status) bool {
	if a.rec.Status.IsTerminal() && a.rec.Status != status {
		log.Debug(log.CatLedger, "keeping first terminal status", "check", a.rec.ID, "status", a.rec.Status, "late", status)
		return false
	}
	a.res.Terminal = a.rec.Status != status
	a.rec.Status = status
	a.rec.Session = ""
	if a.rec.CompletedAt == nil {
		t := a.l.now()
		a.rec.CompletedAt = &t
	}
	a.res.Applied = true
	return true
}

func (a *recordApplier) Started(e events.Started) {
	a.progress(e.Message, e.PaperTitle)
}

func (a *recordApplier) Extracting(e events.Extracting) {
	a.progress(e.Message, e.PaperTitle)
}

func (a *recordApplier) ReferencesExtracted(e events.ReferencesExtracted) {
	a.progress("", "")
	if !a.res.Applied {
		return
	}
	refs := domain.CloneReferences(e.References)
	for i := range refs {
		refs[i].Status = domain.RefPending
	}
	if refs == nil {
		refs = []domain.Reference{}
	}
	a.l.refs[a.rec.ID] = refs
	a.rec.Stats.TotalRefs = e.TotalRefs
	a.rec.Stats.ProcessedRefs = 0
	a.rec.DetailLoaded = true
}

func (a *recordApplier) CheckingReference(e events.CheckingReference) {
	refs := a.l.refs[a.rec.ID]
	if e.Index < 0 || e.Index >= len(refs) {
		log.Warn(log.CatLedger, "reference index out of range", "check", a.rec.ID, "index", e.Index, "refs", len(refs))
		return
	}
	if refs[e.Index].Status.IsResolved() {
		return
	}
	refs[e.Index].Status = domain.RefChecking
	a.res.Applied = true
}

func (a *recordApplier) ReferenceResult(e events.ReferenceResult) {
	refs := a.l.refs[a.rec.ID]
	if e.Index < 0 || e.Index >= len(refs) {
		log.Warn(log.CatLedger, "reference index out of range", "check", a.rec.ID, "index", e.Index, "refs", len(refs))
		return
	}
	refs[e.Index] = refs[e.Index].Merge(e.Result)
	a.res.Applied = true
}

func (a *recordApplier) SummaryUpdate(e events.SummaryUpdate) {
	if a.rec.Status.IsTerminal() {
		return
	}
	a.rec.Stats = e.Stats
	a.res.Applied = true
}

func (a *recordApplier) Completed(e events.Completed) {
	prev := a.rec.Stats
	if !a.terminal(domain.StatusCompleted) {
		return
	}
	stats := e.Stats
	if stats.TotalRefs == 0 {
		stats.TotalRefs = prev.TotalRefs
	}
	stats.ProcessedRefs = stats.TotalRefs
	stats.ProgressPercent = 100
	a.rec.Stats = stats
	a.rec.StatusMessage = terminalMessage(domain.StatusCompleted)
}

func (a *recordApplier) Cancelled(e events.Cancelled) {
	if a.terminal(domain.StatusCancelled) {
		a.rec.StatusMessage = terminalMessage(domain.StatusCancelled)
	}
}

func (a *recordApplier) Error(e events.Error) {
	if a.terminal(domain.StatusError) {
		a.rec.ErrorMessage = e.Message
		a.rec.StatusMessage = terminalMessage(domain.StatusError)
	}
}

func (a *recordApplier) ConnectionError(e events.ConnectionError) {
	if a.rec.Status.IsTerminal() {
		log.Debug(log.CatLedger, "ignoring connection error for terminal record", "check", a.rec.ID)
		return
	}
	a.rec.StatusMessage = "Connection problem: " + e.Message
	a.res.Applied = true
}

func (a *recordApplier) Closed(events.Closed) {}

func (a *recordApplier) Unknown(e events.Unknown) {
	log.Warn(log.CatLedger, "ignoring unknown event kind", "kind", e.RawKind, "check", a.rec.ID)
}
