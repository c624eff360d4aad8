package tracker

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/tracing"
)

const hydrateConcurrency = 4

// Bootstrap loads history, rediscovers jobs that were running when the
// client last exited (or that another client started) and reconnects to
// them. A failed history load is returned after rediscovery has run, so the
// client still tracks live jobs while offline from the history endpoint.
func (t *Tracker) Bootstrap(ctx context.Context) (err error) {
	ctx, span := t.tracer.Start(ctx, tracing.SpanBootstrap)
	defer func() { endSpan(span, err) }()

	var (
		history []*domain.Record
		remote  []api.ActiveSession
		histErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history, histErr = t.backend.ListChecks(gctx, t.historyLimit)
		if histErr != nil {
			log.ErrorErr(log.CatTracker, "loading history failed", histErr)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remote, err = t.backend.ListActiveSessions(gctx)
		if err != nil {
			log.Warn(log.CatTracker, "listing active sessions failed", "error", err)
		}
		return nil
	})
	_ = g.Wait()

	if err := t.lockOpen(); err != nil {
		return err
	}
	t.ledger.EnsureDraft()
	if history != nil {
		t.ledger.ReplaceFromHistory(history)
	}

	bindings := t.bindings(remote)
	for _, b := range remote {
		t.persistSession(b.SessionID, b.CheckID)
	}
	registered := t.register(bindings)
	found := checkIDs(registered)
	t.restoreSelection()
	selected := t.selected
	needSelected := t.needsDetail(selected)
	if needSelected {
		t.ledger.MarkLoading(selected)
	}
	t.publish(ChangeList, 0)
	t.mu.Unlock()

	if needSelected && !slices.Contains(found, selected) {
		found = append(found, selected)
	}
	// Details first: a job that ended while we were away is settled before
	// its channel would be dialed.
	t.hydrate(ctx, found)
	t.openChannels(ctx, registered)

	log.Info(log.CatTracker, "bootstrap complete", "history", len(history), "rediscovered", len(bindings))
	if histErr != nil {
		return fmt.Errorf("loading history: %w", histErr)
	}
	return nil
}

// Rediscover re-reads the local session store and reopens channels that
// dropped. Triggered when another process changes the store.
func (t *Tracker) Rediscover(ctx context.Context) error {
	if err := t.lockOpen(); err != nil {
		return err
	}
	registered := t.register(t.bindings(nil))
	found := checkIDs(registered)

	// Sessions whose channel closed without a terminal event. Marking them
	// open claims the dial so an overlapping pass does not repeat it.
	dial := registered
	if t.transport != nil {
		open := t.router.ActiveSessions()
		for s, c := range t.router.Mapping() {
			if slices.Contains(open, s) {
				continue
			}
			t.router.MarkOpen(s)
			dial = append(dial, domain.SessionBinding{Session: s, Check: c})
			log.Info(log.CatTracker, "reopening channel", "session", s, "check", c)
		}
	}
	if len(found) > 0 {
		t.publish(ChangeList, 0)
	}
	t.mu.Unlock()

	t.hydrate(ctx, found)
	t.openChannels(ctx, dial)
	return nil
}

// bindings merges server-reported sessions with locally persisted ones.
// The server wins when both name the same session. Must hold t.mu.
func (t *Tracker) bindings(remote []api.ActiveSession) []domain.SessionBinding {
	seen := make(map[domain.SessionID]bool)
	var out []domain.SessionBinding
	for _, r := range remote {
		if r.SessionID == "" || r.CheckID.IsDraft() || seen[r.SessionID] {
			continue
		}
		seen[r.SessionID] = true
		out = append(out, domain.SessionBinding{Session: r.SessionID, Check: r.CheckID})
	}
	if t.store == nil {
		return out
	}
	local, err := t.store.ListSessions()
	if err != nil {
		log.ErrorErr(log.CatStore, "listing persisted sessions failed", err)
		return out
	}
	for _, b := range local {
		if seen[b.Session] {
			continue
		}
		seen[b.Session] = true
		out = append(out, b)
	}
	return out
}

// register adds placeholders and router entries for bindings not yet
// tracked and returns them. Channels are not dialed here. Must hold t.mu.
func (t *Tracker) register(bindings []domain.SessionBinding) []domain.SessionBinding {
	var found []domain.SessionBinding
	for _, b := range bindings {
		if _, known := t.router.CheckForSession(b.Session); known {
			continue
		}
		if rec, ok := t.ledger.Get(b.Check); ok && rec.Status.IsTerminal() {
			// Finished while we were away.
			t.forgetSession(b.Session)
			continue
		}
		t.ledger.AddPlaceholder(b.Check)
		if err := t.router.RegisterRediscoveredSession(b.Session, b.Check); err != nil {
			log.ErrorErr(log.CatTracker, "rediscovered session unavailable", err, "session", b.Session, "check", b.Check)
			continue
		}
		found = append(found, b)
	}
	return found
}

func checkIDs(bindings []domain.SessionBinding) []domain.CheckID {
	ids := make([]domain.CheckID, 0, len(bindings))
	for _, b := range bindings {
		ids = append(ids, b.Check)
	}
	return ids
}

// restoreSelection picks up the persisted selection. Must hold t.mu.
func (t *Tracker) restoreSelection() {
	if t.store == nil {
		return
	}
	id, err := t.store.Selected()
	if err != nil {
		log.ErrorErr(log.CatStore, "reading selection failed", err)
		return
	}
	if id.IsDraft() || t.ledger.Has(id) {
		t.selected = id
	}
}

// openChannels dials bindings concurrently, without t.mu.
func (t *Tracker) openChannels(ctx context.Context, bindings []domain.SessionBinding) {
	if t.transport == nil || len(bindings) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for _, b := range bindings {
		g.Go(func() error {
			if err := t.openChannel(gctx, b); err != nil {
				log.Warn(log.CatTracker, "opening channel failed", "session", b.Session, "check", b.Check, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// openChannel dials one session without holding t.mu, so other sessions'
// events and readers of state keep flowing during the handshake. The router
// already counts the session as active; a failed dial takes it back out.
func (t *Tracker) openChannel(ctx context.Context, b domain.SessionBinding) error {
	if t.transport == nil {
		return nil
	}
	t.mu.Lock()
	live := !t.closed && t.isLive(b)
	t.mu.Unlock()
	if !live {
		return nil
	}

	err := t.transport.Open(ctx, b.Session)

	t.mu.Lock()
	defer t.mu.Unlock()
	live = t.isLive(b)
	if err != nil {
		if live {
			t.router.ChannelClosed(b.Session)
			t.ledger.Mirror(b.Check, func(rec *domain.Record, _ *[]domain.Reference) {
				rec.StatusMessage = "Connection problem: progress unavailable"
			})
			t.publish(ChangeRecord, b.Check)
		}
		return fmt.Errorf("opening channel for %s: %w", b.Session, err)
	}
	if t.closed || !live {
		// Ended, cancelled or deleted while dialing.
		t.transport.Close(b.Session)
	}
	return nil
}

// isLive reports whether b is still the open session of its check. Must
// hold t.mu.
func (t *Tracker) isLive(b domain.SessionBinding) bool {
	s, ok := t.router.SessionForCheck(b.Check)
	return ok && s == b.Session
}

// hydrate fetches details for ids concurrently and applies each as it
// arrives.
func (t *Tracker) hydrate(ctx context.Context, ids []domain.CheckID) {
	if len(ids) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := t.loadDetail(gctx, id); err != nil {
				log.Warn(log.CatTracker, "hydrating check failed", "check", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
