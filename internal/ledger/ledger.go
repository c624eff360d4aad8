// Package ledger keeps the history list: every known check, running or not,
// with enough summary to render a row and, once known, the full reference
// results so a check can become the detail view without a fetch.
package ledger

import (
	"slices"
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/log"
)

// Ledger is the history store. It is not safe for concurrent use; the
// tracker serializes access.
//
// References live in a separate arena keyed by check id so record updates
// replace the row without copying result lists, and readers always receive
// deep copies.
type Ledger struct {
	records map[domain.CheckID]*domain.Record
	refs    map[domain.CheckID][]domain.Reference
	now     func() time.Time
}

// New returns an empty ledger containing only the draft entry.
func New() *Ledger {
	l := &Ledger{
		records: make(map[domain.CheckID]*domain.Record),
		refs:    make(map[domain.CheckID][]domain.Reference),
		now:     time.Now,
	}
	l.EnsureDraft()
	return l
}

// EnsureDraft recreates the draft entry if it is absent.
func (l *Ledger) EnsureDraft() {
	if _, ok := l.records[domain.DraftID]; ok {
		return
	}
	draft := domain.NewDraft()
	draft.CreatedAt = l.now()
	l.records[domain.DraftID] = draft
}

// RemoveDraft drops the draft entry once a real submission exists.
func (l *Ledger) RemoveDraft() {
	delete(l.records, domain.DraftID)
}

// ReconnectingMessage is the status line of a rediscovered job until its
// detail or first event arrives.
const ReconnectingMessage = "Reconnecting..."

// AddPlaceholder creates the entry of a rediscovered job that is absent from
// history, or flags an existing one for a detail fetch.
func (l *Ledger) AddPlaceholder(id domain.CheckID) {
	if _, ok := l.records[id]; ok {
		l.MarkLoading(id)
		return
	}
	l.Upsert(&domain.Record{
		ID:            id,
		Status:        domain.StatusInProgress,
		StatusMessage: ReconnectingMessage,
		Loading:       true,
	})
}

// CreateOptimistic inserts the entry for a just-submitted job before any
// event can arrive for it.
func (l *Ledger) CreateOptimistic(id domain.CheckID, session domain.SessionID, src domain.Source, model string) (*domain.Record, error) {
	if id.IsDraft() {
		return nil, domain.ErrDraftImmutable
	}
	rec := &domain.Record{
		ID:            id,
		Source:        src,
		Model:         model,
		Status:        domain.StatusInProgress,
		Session:       session,
		StatusMessage: "Submitted",
		CreatedAt:     l.now(),
	}
	if prev, ok := l.records[id]; ok {
		// The id may already be known from history; keep user edits.
		rec.Label = prev.Label
		rec.BatchID = prev.BatchID
		rec.BatchLabel = prev.BatchLabel
	}
	l.records[id] = rec
	delete(l.refs, id)
	log.Debug(log.CatLedger, "created optimistic entry", "check", id, "session", session)
	return rec.Clone(), nil
}

// Upsert inserts rec or replaces the stored summary fields. References on
// rec replace stored ones only when non-nil.
func (l *Ledger) Upsert(rec *domain.Record) {
	if rec == nil {
		return
	}
	stored := rec.Clone()
	refs := stored.References
	stored.References = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = l.now()
	}
	l.records[stored.ID] = stored
	if refs != nil {
		l.refs[stored.ID] = refs
	}
}

// ReplaceFromHistory merges a history listing. Entries for running jobs
// that the client is already tracking keep their live state; everything else
// takes the server summary.
func (l *Ledger) ReplaceFromHistory(summaries []*domain.Record) {
	for _, s := range summaries {
		if s == nil || s.ID.IsDraft() {
			continue
		}
		if cur, ok := l.records[s.ID]; ok && cur.Session != "" {
			if cur.Title == "" {
				cur.Title = s.Title
			}
			if cur.Label == "" {
				cur.Label = s.Label
			}
			continue
		}
		l.Upsert(s)
	}
}

// ApplyDetail stores a fetched full record and clears the loading flag.
// For jobs still running under this client see mergeLive.
func (l *Ledger) ApplyDetail(detail *domain.Record) {
	if detail == nil {
		return
	}
	cur, ok := l.records[detail.ID]
	if ok && cur.Session != "" && !cur.Status.IsTerminal() {
		l.mergeLive(cur, detail)
		return
	}
	d := detail.Clone()
	if ok {
		if d.Label == "" {
			d.Label = cur.Label
		}
		if d.BatchID == "" {
			d.BatchID, d.BatchLabel = cur.BatchID, cur.BatchLabel
		}
		d.CreatedAt = firstNonZero(cur.CreatedAt, d.CreatedAt)
	}
	d.Loading = false
	d.FetchError = ""
	d.DetailLoaded = true
	if d.References == nil {
		d.References = []domain.Reference{}
	}
	l.Upsert(d)
}

// mergeLive folds a fetched record into the entry of a running job. Live
// references and counters win; whatever the entry has not learned from
// events yet is taken from the detail. A terminal detail means the job
// ended while nobody listened: the entry takes the final state and drops its
// session, and the caller must end the session in the router.
func (l *Ledger) mergeLive(cur, detail *domain.Record) {
	placeholder := cur.StatusMessage == ReconnectingMessage
	cur.Loading = false
	cur.FetchError = ""
	if cur.Title == "" {
		cur.Title = detail.Title
	}
	if cur.Label == "" {
		cur.Label = detail.Label
	}
	if cur.Source.Value == "" {
		cur.Source = detail.Source
	}
	if cur.Model == "" {
		cur.Model = detail.Model
	}
	if cur.BatchID == "" {
		cur.BatchID, cur.BatchLabel = detail.BatchID, detail.BatchLabel
	}
	if placeholder && !detail.CreatedAt.IsZero() {
		cur.CreatedAt = detail.CreatedAt
	}
	if cur.Stats == (domain.Stats{}) {
		cur.Stats = detail.Stats
	}
	_, haveRefs := l.refs[cur.ID]

	if detail.Status.IsTerminal() {
		cur.Status = detail.Status
		cur.Session = ""
		cur.ErrorMessage = detail.ErrorMessage
		cur.StatusMessage = detail.StatusMessage
		if cur.StatusMessage == "" {
			cur.StatusMessage = terminalMessage(detail.Status)
		}
		if detail.Stats != (domain.Stats{}) {
			cur.Stats = detail.Stats
		}
		at := l.now()
		if detail.CompletedAt != nil {
			at = *detail.CompletedAt
		}
		cur.CompletedAt = &at
		if detail.References != nil {
			l.refs[cur.ID] = domain.CloneReferences(detail.References)
			cur.DetailLoaded = true
		}
		log.Info(log.CatLedger, "running entry ended while away", "check", cur.ID, "status", cur.Status)
		return
	}

	if placeholder && detail.StatusMessage != "" {
		cur.StatusMessage = detail.StatusMessage
	}
	if !haveRefs && detail.References != nil {
		l.refs[cur.ID] = domain.CloneReferences(detail.References)
		cur.DetailLoaded = true
	}
}

func terminalMessage(s domain.Status) string {
	switch s {
	case domain.StatusCancelled:
		return "Check cancelled"
	case domain.StatusError:
		return "Check failed"
	default:
		return "Check completed"
	}
}

// MarkLoading flags a record whose detail fetch is in flight.
func (l *Ledger) MarkLoading(id domain.CheckID) bool {
	rec, ok := l.records[id]
	if !ok {
		return false
	}
	rec.Loading = true
	rec.FetchError = ""
	return true
}

// MarkFetchFailed records a failed detail fetch.
func (l *Ledger) MarkFetchFailed(id domain.CheckID, err error) {
	if rec, ok := l.records[id]; ok {
		rec.Loading = false
		rec.FetchError = err.Error()
	}
}

// Mirror runs fn on the stored record; used by the router to keep the entry
// of the focused job in step with the live model. Returns false for unknown
// ids.
func (l *Ledger) Mirror(id domain.CheckID, fn func(rec *domain.Record, refs *[]domain.Reference)) bool {
	rec, ok := l.records[id]
	if !ok {
		return false
	}
	refs := l.refs[id]
	fn(rec, &refs)
	if refs != nil {
		l.refs[id] = refs
		rec.DetailLoaded = true
	}
	return true
}

// SetSession updates the open session id of a record.
func (l *Ledger) SetSession(id domain.CheckID, session domain.SessionID) {
	if rec, ok := l.records[id]; ok {
		rec.Session = session
	}
}

// SetBatch tags a record with its batch grouping.
func (l *Ledger) SetBatch(id domain.CheckID, batchID, batchLabel string) {
	if rec, ok := l.records[id]; ok {
		rec.BatchID = batchID
		rec.BatchLabel = batchLabel
	}
}

// MarkCancelled optimistically marks a record cancelled.
func (l *Ledger) MarkCancelled(id domain.CheckID) error {
	rec, ok := l.records[id]
	if !ok {
		return &domain.CheckNotFoundError{ID: id}
	}
	if rec.Status.IsTerminal() {
		return nil
	}
	rec.Status = domain.StatusCancelled
	rec.StatusMessage = terminalMessage(domain.StatusCancelled)
	rec.Session = ""
	return nil
}

// Rename sets the user label of a record.
func (l *Ledger) Rename(id domain.CheckID, label string) error {
	if id.IsDraft() {
		return domain.ErrDraftImmutable
	}
	rec, ok := l.records[id]
	if !ok {
		return &domain.CheckNotFoundError{ID: id}
	}
	rec.Label = label
	return nil
}

// Delete removes a record and its references. The draft entry cannot be
// deleted.
func (l *Ledger) Delete(id domain.CheckID) error {
	if id.IsDraft() {
		return domain.ErrDraftImmutable
	}
	if _, ok := l.records[id]; !ok {
		return &domain.CheckNotFoundError{ID: id}
	}
	delete(l.records, id)
	delete(l.refs, id)
	return nil
}

// Has reports whether a record exists.
func (l *Ledger) Has(id domain.CheckID) bool {
	_, ok := l.records[id]
	return ok
}

// Get returns a deep copy of a record with its references attached.
func (l *Ledger) Get(id domain.CheckID) (*domain.Record, bool) {
	rec, ok := l.records[id]
	if !ok {
		return nil, false
	}
	out := rec.Clone()
	out.References = domain.CloneReferences(l.refs[id])
	return out, true
}

// List returns summary copies (no references) ordered with the draft first
// and then newest first.
func (l *Ledger) List() []*domain.Record {
	out := make([]*domain.Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.Record) int {
		switch {
		case a.ID.IsDraft():
			return -1
		case b.ID.IsDraft():
			return 1
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of records including the draft.
func (l *Ledger) Len() int {
	return len(l.records)
}

func firstNonZero(a, b time.Time) time.Time {
	if !a.IsZero() {
		return a
	}
	return b
}
