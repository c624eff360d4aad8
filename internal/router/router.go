// Package router translates transport identity (session ids) into record
// identity (check ids) and dispatches every incoming event either to the
// live model of the focused session or directly to the ledger entry of a
// background session.
//
// The router decides per event, never per job start: two jobs in flight
// must not be able to overwrite each other's state.
package router

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/refcheck/internal/active"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/ledger"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/tracing"
)

const defaultRetiredLimit = 256

// Disposition says what RouteEvent did with an event.
type Disposition string

const (
	// Focused events updated the live model and were mirrored to the ledger.
	Focused Disposition = "focused"
	// Background events updated a ledger entry only.
	Background Disposition = "background"
	// Discarded events could not be attributed to a check.
	Discarded Disposition = "discarded"
	// Failed events panicked while being applied; state of other sessions is
	// untouched.
	Failed Disposition = "failed"
)

// TerminalHook is called after a terminal event ended a session.
type TerminalHook func(session domain.SessionID, check domain.CheckID, kind events.Kind)

// Option configures a Router.
type Option func(*Router)

// WithTracer sets the tracer used for route spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithTerminalHook registers the callback for terminal events.
func WithTerminalHook(h TerminalHook) Option {
	return func(r *Router) { r.onTerminal = h }
}

// WithRetiredLimit bounds how many ended sessions are remembered for late
// events.
func WithRetiredLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.retiredLimit = n
		}
	}
}

// Router owns the session → check map, the active session set and the
// focused session. It is not safe for concurrent use.
type Router struct {
	ledger *ledger.Ledger
	model  *active.Model

	sessions map[domain.SessionID]domain.CheckID
	open     map[domain.SessionID]struct{}
	focused  domain.SessionID

	retired      map[domain.SessionID]domain.CheckID
	retiredOrder []domain.SessionID
	retiredLimit int

	tracer     trace.Tracer
	onTerminal TerminalHook
}

// New creates a router over the given ledger and live model.
func New(l *ledger.Ledger, m *active.Model, opts ...Option) *Router {
	r := &Router{
		ledger:       l,
		model:        m,
		sessions:     make(map[domain.SessionID]domain.CheckID),
		open:         make(map[domain.SessionID]struct{}),
		retired:      make(map[domain.SessionID]domain.CheckID),
		retiredLimit: defaultRetiredLimit,
		tracer:       noop.NewTracerProvider().Tracer("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession records session → check for a job this client started and
// counts the session as active. The ledger entry must already exist.
// Opening the channel is the caller's job; a failed open is reported back
// through ChannelClosed.
func (r *Router) StartSession(session domain.SessionID, check domain.CheckID) error {
	if err := r.register(session, check); err != nil {
		return err
	}
	log.Info(log.CatRouter, "session started", "session", session, "check", check)
	return nil
}

// RegisterRediscoveredSession is StartSession for a job learned about after
// the fact, e.g. after a restart.
func (r *Router) RegisterRediscoveredSession(session domain.SessionID, check domain.CheckID) error {
	if err := r.register(session, check); err != nil {
		return err
	}
	log.Info(log.CatRouter, "session rediscovered", "session", session, "check", check)
	return nil
}

func (r *Router) register(session domain.SessionID, check domain.CheckID) error {
	if session == "" {
		return fmt.Errorf("register session: empty session id")
	}
	if check.IsDraft() {
		return fmt.Errorf("register session %s: %w", session, domain.ErrDraftImmutable)
	}
	if !r.ledger.Has(check) {
		return fmt.Errorf("register session %s: %w", session, &domain.CheckNotFoundError{ID: check})
	}
	// A check has at most one open session.
	for s, c := range r.sessions {
		if c == check && s != session {
			log.Warn(log.CatRouter, "replacing session for check", "check", check, "old", s, "new", session)
			r.EndSession(s)
		}
	}
	r.sessions[session] = check
	r.open[session] = struct{}{}
	delete(r.retired, session)
	r.ledger.SetSession(check, session)
	return nil
}

// EndSession removes the mapping and active-set membership. It does not
// close the channel. The mapping is kept in a bounded retired table so late
// events still resolve to their check.
func (r *Router) EndSession(session domain.SessionID) {
	check, ok := r.sessions[session]
	if !ok {
		return
	}
	delete(r.sessions, session)
	delete(r.open, session)
	r.retire(session, check)
	log.Debug(log.CatRouter, "session ended", "session", session, "check", check)
}

// ChannelClosed shrinks the active set when a channel closes without a
// terminal event or fails to open. The mapping stays so the session can be
// reopened and late events still resolve.
func (r *Router) ChannelClosed(session domain.SessionID) {
	delete(r.open, session)
}

// MarkOpen returns a known session to the active set after a reopen.
func (r *Router) MarkOpen(session domain.SessionID) bool {
	if _, ok := r.sessions[session]; !ok {
		return false
	}
	r.open[session] = struct{}{}
	return true
}

func (r *Router) retire(session domain.SessionID, check domain.CheckID) {
	if _, ok := r.retired[session]; !ok {
		r.retiredOrder = append(r.retiredOrder, session)
	}
	r.retired[session] = check
	for len(r.retiredOrder) > r.retiredLimit {
		oldest := r.retiredOrder[0]
		r.retiredOrder = r.retiredOrder[1:]
		delete(r.retired, oldest)
	}
}

// ForgetCheck drops every mapping (live or retired) pointing at check.
// Used when the ledger entry is deleted.
func (r *Router) ForgetCheck(check domain.CheckID) {
	for s, c := range r.sessions {
		if c == check {
			delete(r.sessions, s)
			delete(r.open, s)
			if r.focused == s {
				r.focused = ""
			}
		}
	}
	for s, c := range r.retired {
		if c == check {
			delete(r.retired, s)
			r.retiredOrder = slices.DeleteFunc(r.retiredOrder, func(x domain.SessionID) bool { return x == s })
		}
	}
}

// Focus makes session the one tracked by the live model. The model is
// seeded from the session's ledger entry so background progress carries over.
func (r *Router) Focus(session domain.SessionID) error {
	check, ok := r.sessions[session]
	if !ok {
		return fmt.Errorf("focus: session %s is not registered", session)
	}
	if r.focused == session && r.model.Tracking() == check {
		return nil
	}
	rec, ok := r.ledger.Get(check)
	if !ok {
		return fmt.Errorf("focus %s: %w", session, &domain.CheckNotFoundError{ID: check})
	}
	r.focused = session
	if len(rec.References) == 0 && rec.Stats.TotalRefs == 0 && !rec.Status.IsTerminal() {
		r.model.Reset(check, session, rec.Source)
	} else {
		r.model.LoadFrom(rec)
	}
	log.Debug(log.CatRouter, "focus changed", "session", session, "check", check)
	return nil
}

// Unfocus detaches the live model from any session and returns it to idle.
func (r *Router) Unfocus() {
	r.focused = ""
	r.model.Clear()
}

// FocusedSession returns the focused session id ("" when none).
func (r *Router) FocusedSession() domain.SessionID {
	return r.focused
}

// FocusedCheck returns the check id of the focused session, or 0.
func (r *Router) FocusedCheck() domain.CheckID {
	if r.focused == "" {
		return 0
	}
	if c, ok := r.sessions[r.focused]; ok {
		return c
	}
	return r.retired[r.focused]
}

// CheckForSession resolves a live or retired session.
func (r *Router) CheckForSession(session domain.SessionID) (domain.CheckID, bool) {
	if c, ok := r.sessions[session]; ok {
		return c, true
	}
	c, ok := r.retired[session]
	return c, ok
}

// SessionForCheck returns the open session of check, if any.
func (r *Router) SessionForCheck(check domain.CheckID) (domain.SessionID, bool) {
	for s, c := range r.sessions {
		if c == check {
			return s, true
		}
	}
	return "", false
}

// Mapping returns a copy of the live session → check map.
func (r *Router) Mapping() map[domain.SessionID]domain.CheckID {
	out := make(map[domain.SessionID]domain.CheckID, len(r.sessions))
	for s, c := range r.sessions {
		out[s] = c
	}
	return out
}

// ActiveSessions returns the sessions with open channels, sorted.
func (r *Router) ActiveSessions() []domain.SessionID {
	out := make([]domain.SessionID, 0, len(r.open))
	for s := range r.open {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// RouteEvent attributes ev to a check and applies it. It never panics and
// never returns an error: failures are isolated to the event and reported
// through the Disposition.
func (r *Router) RouteEvent(ctx context.Context, ev events.Event) (disp Disposition) {
	_, span := r.tracer.Start(ctx, tracing.SpanRoute, trace.WithAttributes(
		attribute.String(tracing.AttrEventKind, string(ev.Kind())),
		attribute.String(tracing.AttrSessionID, string(ev.Session())),
	))
	defer func() {
		if p := recover(); p != nil {
			log.Error(log.CatRouter, "event handler panicked", "kind", ev.Kind(), "session", ev.Session(), "panic", p)
			span.SetStatus(codes.Error, fmt.Sprint(p))
			disp = Failed
		}
		span.SetAttributes(attribute.String(tracing.AttrDisposition, string(disp)))
		span.End()
	}()

	target, ok := r.resolve(ev)
	if !ok {
		return Discarded
	}
	span.SetAttributes(attribute.Int64(tracing.AttrCheckID, int64(target)))

	session := ev.Session()
	if _, isClosed := ev.(events.Closed); isClosed {
		r.ChannelClosed(session)
	}

	r.adopt(session)

	if r.isFocused(session, target) {
		r.applyFocused(target, ev)
		disp = Focused
	} else {
		if _, err := r.ledger.Apply(target, ev); err != nil {
			log.ErrorErr(log.CatRouter, "ledger apply failed", err, "check", target)
			return Discarded
		}
		disp = Background
	}

	if ev.Kind().IsTerminal() {
		r.finish(session, target, ev.Kind())
	}
	return disp
}

// resolve picks the target check: explicit id, then the session mapping,
// then (only for events without a session id) the focused check.
func (r *Router) resolve(ev events.Event) (domain.CheckID, bool) {
	session := ev.Session()
	mapped, known := r.CheckForSession(session)

	var target domain.CheckID
	switch {
	case ev.Check() != 0:
		target = ev.Check()
		if known && mapped != target {
			log.Warn(log.CatRouter, "event check id disagrees with session mapping", "session", session, "mapped", mapped, "event", target)
		}
		if !known && session != "" {
			log.Warn(log.CatRouter, "event from unregistered session carries check id", "session", session, "check", target)
		}
	case known:
		target = mapped
	case session == "":
		target = r.FocusedCheck()
	default:
		log.Warn(log.CatRouter, "discarding event from unregistered session", "session", session, "kind", ev.Kind())
		return 0, false
	}

	if target == 0 {
		log.Warn(log.CatRouter, "discarding event without target check", "session", session, "kind", ev.Kind())
		return 0, false
	}
	if !r.ledger.Has(target) {
		log.Warn(log.CatRouter, "discarding event for unknown check", "session", session, "check", target, "kind", ev.Kind())
		return 0, false
	}
	return target, true
}

// adopt focuses the only active session when no live session is focused.
// A focused session that already ended does not block adoption.
func (r *Router) adopt(session domain.SessionID) {
	if _, live := r.sessions[r.focused]; live || len(r.open) != 1 {
		return
	}
	if _, ok := r.open[session]; !ok {
		return
	}
	if err := r.Focus(session); err != nil {
		log.ErrorErr(log.CatRouter, "adopting session failed", err, "session", session)
	}
}

func (r *Router) isFocused(session domain.SessionID, target domain.CheckID) bool {
	if r.focused == "" || r.model.Tracking() != target {
		return false
	}
	return session == "" || session == r.focused
}

// applyFocused updates the live model and mirrors the same event into the
// ledger entry so the list and a later refocus see current data.
func (r *Router) applyFocused(target domain.CheckID, ev events.Event) {
	change := r.model.Apply(ev)
	if _, err := r.ledger.Apply(target, ev); err != nil {
		log.ErrorErr(log.CatRouter, "mirroring focused event failed", err, "check", target)
		return
	}
	if change.Ignored {
		return
	}
	state := r.model.Snapshot()
	r.ledger.Mirror(target, func(rec *domain.Record, _ *[]domain.Reference) {
		if state.PaperTitle != "" {
			rec.Title = state.PaperTitle
		}
		if state.StatusMessage != "" {
			rec.StatusMessage = state.StatusMessage
		}
	})
}

// Settle ends the live session of check once its ledger entry turned
// terminal without a terminal event, e.g. from a detail fetched after the
// job finished while this client was away. The live model is reloaded if it
// tracks check. Reports whether a session was ended.
func (r *Router) Settle(check domain.CheckID) bool {
	session, ok := r.SessionForCheck(check)
	if !ok {
		return false
	}
	rec, ok := r.ledger.Get(check)
	if !ok || !rec.Status.IsTerminal() {
		return false
	}
	if r.model.Tracking() == check {
		r.model.LoadFrom(rec)
	}
	r.finish(session, check, terminalKind(rec.Status))
	return true
}

func terminalKind(s domain.Status) events.Kind {
	switch s {
	case domain.StatusCancelled:
		return events.KindCancelled
	case domain.StatusError:
		return events.KindError
	default:
		return events.KindCompleted
	}
}

func (r *Router) finish(session domain.SessionID, check domain.CheckID, kind events.Kind) {
	if _, live := r.sessions[session]; !live {
		// Late terminal event for an already ended session.
		return
	}
	r.EndSession(session)
	log.Info(log.CatRouter, "session reached terminal event", "session", session, "check", check, "kind", kind)
	if r.onTerminal != nil {
		r.onTerminal(session, check, kind)
	}
}
