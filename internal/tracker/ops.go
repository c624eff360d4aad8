package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/tracing"
)

// StartCheck submits a job, creates its ledger entry before any event can
// arrive, opens its channel and focuses it. A channel that fails to open is
// not an error: the job runs on the server and the entry shows the problem.
func (t *Tracker) StartCheck(ctx context.Context, sub api.Submission) (api.Started, error) {
	ctx, span := t.tracer.Start(ctx, tracing.SpanStart)
	span.SetAttributes(
		attribute.String(tracing.AttrSourceKind, string(sub.Source.Kind)),
		attribute.String(tracing.AttrBatchID, sub.BatchID),
	)
	started, err := t.startCheck(ctx, sub)
	if err == nil {
		span.SetAttributes(checkAttr(started.CheckID), sessionAttr(started.SessionID))
	}
	endSpan(span, err)
	return started, err
}

func (t *Tracker) startCheck(ctx context.Context, sub api.Submission) (api.Started, error) {
	if strings.TrimSpace(sub.Source.Value) == "" {
		return api.Started{}, domain.ErrEmptySource
	}
	if sub.Model == "" {
		sub.Model = t.defaultModel
	}

	// The submission round-trip happens without the lock so events of other
	// jobs keep flowing.
	started, err := t.backend.SubmitCheck(ctx, sub)
	if err != nil {
		return api.Started{}, fmt.Errorf("submitting check: %w", err)
	}

	if err := t.lockOpen(); err != nil {
		return started, err
	}
	if _, err := t.ledger.CreateOptimistic(started.CheckID, started.SessionID, sub.Source, sub.Model); err != nil {
		t.mu.Unlock()
		return started, err
	}
	if sub.BatchID != "" {
		t.ledger.SetBatch(started.CheckID, sub.BatchID, sub.BatchLabel)
	}
	t.ledger.RemoveDraft()
	t.persistSession(started.SessionID, started.CheckID)

	if err := t.router.StartSession(started.SessionID, started.CheckID); err != nil {
		log.ErrorErr(log.CatTracker, "registering session failed", err, "check", started.CheckID, "session", started.SessionID)
	}
	// A new submission takes focus.
	if err := t.router.Focus(started.SessionID); err != nil {
		log.ErrorErr(log.CatTracker, "focusing new check failed", err, "check", started.CheckID)
	}
	t.selected = started.CheckID
	t.persistSelection()
	t.publish(ChangeList, started.CheckID)
	t.mu.Unlock()

	// Dialed after the entry exists, so no event can precede it.
	binding := domain.SessionBinding{Session: started.SessionID, Check: started.CheckID}
	if err := t.openChannel(ctx, binding); err != nil {
		log.ErrorErr(log.CatTracker, "progress channel unavailable", err, "check", started.CheckID, "session", started.SessionID)
	}
	log.Info(log.CatTracker, "check started", "check", started.CheckID, "session", started.SessionID, "source", sub.Source.Kind)
	return started, nil
}

// StartBatch starts one job per source, all sharing a generated batch id.
// Failed submissions do not stop the batch; their errors are joined.
func (t *Tracker) StartBatch(ctx context.Context, sources []domain.Source, label string) ([]api.Started, error) {
	if len(sources) == 0 {
		return nil, domain.ErrEmptySource
	}
	batchID := uuid.NewString()
	var (
		out  []api.Started
		errs []error
	)
	for i, src := range sources {
		started, err := t.StartCheck(ctx, api.Submission{Source: src, BatchID: batchID, BatchLabel: label})
		if err != nil {
			errs = append(errs, fmt.Errorf("batch item %d: %w", i+1, err))
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				break
			}
			continue
		}
		out = append(out, started)
	}
	log.Info(log.CatTracker, "batch submitted", "batch", batchID, "started", len(out), "failed", len(errs))
	return out, errors.Join(errs...)
}

// Cancel stops a running check. The entry turns cancelled immediately and
// the channel is closed; the server request follows without the lock. A
// failing request leaves the entry cancelled and is returned.
func (t *Tracker) Cancel(ctx context.Context, id domain.CheckID) (err error) {
	ctx, span := t.tracer.Start(ctx, tracing.SpanCancel)
	span.SetAttributes(checkAttr(id))
	defer func() { endSpan(span, err) }()

	if id.IsDraft() {
		return domain.ErrDraftImmutable
	}
	if err := t.lockOpen(); err != nil {
		return err
	}
	rec, ok := t.ledger.Get(id)
	if !ok {
		t.mu.Unlock()
		return &domain.CheckNotFoundError{ID: id}
	}
	if rec.Status.IsTerminal() {
		t.mu.Unlock()
		return nil
	}
	session, hasSession := t.router.SessionForCheck(id)
	if hasSession {
		// Routed like a server event so the live model, the ledger and the
		// session bookkeeping all see the same terminal transition.
		t.router.RouteEvent(ctx, events.Cancelled{
			Envelope: events.Envelope{SessionID: session, CheckID: id},
			Message:  "Check cancelled",
		})
	} else {
		session = rec.Session
		_ = t.ledger.MarkCancelled(id)
	}
	t.publish(ChangeRecord, id)
	t.mu.Unlock()

	if session == "" {
		log.Warn(log.CatTracker, "cancelled check without a known session", "check", id)
		return nil
	}
	span.SetAttributes(sessionAttr(session))
	if err := t.backend.Cancel(ctx, session); err != nil {
		log.ErrorErr(log.CatTracker, "cancel request failed", err, "check", id, "session", session)
		t.mu.Lock()
		t.ledger.Mirror(id, func(rec *domain.Record, _ *[]domain.Reference) {
			rec.StatusMessage = "Cancel request failed: " + err.Error()
		})
		t.publish(ChangeRecord, id)
		t.mu.Unlock()
		return fmt.Errorf("cancelling check %d: %w", id, err)
	}
	return nil
}

// Delete removes a check on the server and locally. A running check is
// cancelled first, best effort.
func (t *Tracker) Delete(ctx context.Context, id domain.CheckID) (err error) {
	ctx, span := t.tracer.Start(ctx, tracing.SpanDelete)
	span.SetAttributes(checkAttr(id))
	defer func() { endSpan(span, err) }()

	if id.IsDraft() {
		return domain.ErrDraftImmutable
	}
	if err := t.lockOpen(); err != nil {
		return err
	}
	if !t.ledger.Has(id) {
		t.mu.Unlock()
		return &domain.CheckNotFoundError{ID: id}
	}
	session, running := t.router.SessionForCheck(id)
	t.mu.Unlock()

	if running {
		if err := t.backend.Cancel(ctx, session); err != nil {
			log.Warn(log.CatTracker, "cancel before delete failed", "check", id, "session", session, "error", err)
		}
	}
	if err := t.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting check %d: %w", id, err)
	}
	t.details.Invalidate(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	if running {
		t.forgetSession(session)
		if t.transport != nil {
			t.transport.Close(session)
		}
	}
	if t.router.FocusedCheck() == id {
		t.router.Unfocus()
	}
	t.router.ForgetCheck(id)
	if err := t.ledger.Delete(id); err != nil && !domain.IsCheckNotFound(err) {
		return err
	}
	if t.selected == id {
		t.ledger.EnsureDraft()
		t.selected = domain.DraftID
		t.persistSelection()
	}
	log.Info(log.CatTracker, "check deleted", "check", id)
	t.publish(ChangeList, id)
	return nil
}

// Rename sets the user label of a check on the server and locally.
func (t *Tracker) Rename(ctx context.Context, id domain.CheckID, label string) error {
	if id.IsDraft() {
		return domain.ErrDraftImmutable
	}
	label = strings.TrimSpace(label)
	if err := t.lockOpen(); err != nil {
		return err
	}
	known := t.ledger.Has(id)
	t.mu.Unlock()
	if !known {
		return &domain.CheckNotFoundError{ID: id}
	}

	if err := t.backend.Rename(ctx, id, label); err != nil {
		return fmt.Errorf("renaming check %d: %w", id, err)
	}
	t.details.Invalidate(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ledger.Rename(id, label); err != nil {
		return err
	}
	t.publish(ChangeRecord, id)
	return nil
}

// NewDraft recreates the draft entry and selects it.
func (t *Tracker) NewDraft() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ledger.EnsureDraft()
	t.selected = domain.DraftID
	t.persistSelection()
	t.publish(ChangeSelection, domain.DraftID)
}

// Select makes id the selected entry and loads its detail if the ledger
// only holds a summary. Selection never moves focus.
func (t *Tracker) Select(ctx context.Context, id domain.CheckID) error {
	if err := t.lockOpen(); err != nil {
		return err
	}
	if !t.ledger.Has(id) {
		if !id.IsDraft() {
			t.mu.Unlock()
			return &domain.CheckNotFoundError{ID: id}
		}
		t.ledger.EnsureDraft()
	}
	t.selected = id
	t.persistSelection()
	need := t.needsDetail(id)
	if need {
		t.ledger.MarkLoading(id)
	}
	t.publish(ChangeSelection, id)
	t.mu.Unlock()

	if !need {
		return nil
	}
	return t.loadDetail(ctx, id)
}

// needsDetail must be called with t.mu held.
func (t *Tracker) needsDetail(id domain.CheckID) bool {
	if id.IsDraft() {
		return false
	}
	rec, ok := t.ledger.Get(id)
	if !ok || rec.DetailLoaded || rec.Loading {
		return false
	}
	// Running jobs under this client fill in from events.
	_, live := t.router.SessionForCheck(id)
	return !live
}

// loadDetail fetches id without the lock and applies the result.
func (t *Tracker) loadDetail(ctx context.Context, id domain.CheckID) (err error) {
	ctx, span := t.tracer.Start(ctx, tracing.SpanDetail)
	span.SetAttributes(checkAttr(id))
	defer func() { endSpan(span, err) }()

	rec, fetchErr := t.details.GetCheckDetail(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ledger.Has(id) {
		// Deleted while the fetch was in flight.
		return nil
	}
	if fetchErr != nil {
		t.ledger.MarkFetchFailed(id, fetchErr)
		t.publish(ChangeRecord, id)
		return fmt.Errorf("loading check %d: %w", id, fetchErr)
	}
	t.ledger.ApplyDetail(rec)
	// A running entry whose detail is terminal finished while nobody was
	// listening; no terminal event will follow on its channel.
	if t.router.Settle(id) {
		t.publish(ChangeList, id)
	}
	t.publish(ChangeRecord, id)
	return nil
}
