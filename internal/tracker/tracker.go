// Package tracker is the process-wide owner of the session router, the
// history ledger, the live model and the transport. Every mutation goes
// through one mutex, so the components underneath can stay single-threaded.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/refcheck/internal/active"
	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/ledger"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/pubsub"
	"github.com/zjrosen/refcheck/internal/router"
	"github.com/zjrosen/refcheck/internal/tracing"
	"github.com/zjrosen/refcheck/internal/transport"
	"github.com/zjrosen/refcheck/internal/view"
)

// ErrClosed is returned by operations after Close.
var ErrClosed = errors.New("tracker: closed")

// Backend is the verification service as seen by the tracker.
// *api.Client satisfies it.
type Backend interface {
	SubmitCheck(ctx context.Context, sub api.Submission) (api.Started, error)
	Cancel(ctx context.Context, session domain.SessionID) error
	ListChecks(ctx context.Context, limit int) ([]*domain.Record, error)
	GetCheckDetail(ctx context.Context, id domain.CheckID) (*domain.Record, error)
	Rename(ctx context.Context, id domain.CheckID, label string) error
	Delete(ctx context.Context, id domain.CheckID) error
	ListActiveSessions(ctx context.Context) ([]api.ActiveSession, error)
}

// Transport opens and closes progress channels. *transport.Manager
// satisfies it. Open may block for the handshake and is never called with
// the tracker's lock held; Close must not wait for the reader goroutine.
type Transport interface {
	Open(ctx context.Context, session domain.SessionID) error
	Close(session domain.SessionID)
	CloseAll()
}

// Config wires a Tracker.
type Config struct {
	Backend Backend
	// Store persists running sessions and the selection. Optional.
	Store domain.SessionStore
	// NewTransport builds the transport around the tracker's event handler.
	NewTransport func(h transport.Handler) Transport
	Tracer       trace.Tracer

	HistoryLimit int
	DetailTTL    time.Duration
	// Model is the LLM provider used when a submission names none.
	Model string
}

// ChangeKind classifies a Change notification.
type ChangeKind string

const (
	// ChangeRecord means one ledger entry changed.
	ChangeRecord ChangeKind = "record"
	// ChangeList means entries were added or removed.
	ChangeList ChangeKind = "list"
	// ChangeSelection means the selected entry changed.
	ChangeSelection ChangeKind = "selection"
)

// Change tells listeners what to re-render. Notifications may be dropped
// under load; consumers re-read state through View and Records.
type Change struct {
	Kind    ChangeKind
	CheckID domain.CheckID
}

// Tracker serializes all client state.
type Tracker struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	model    *active.Model
	router   *router.Router
	selected domain.CheckID
	closed   bool

	backend   Backend
	details   *api.CachedDetails
	store     domain.SessionStore
	transport Transport
	tracer    trace.Tracer
	changes   *pubsub.Broker[Change]

	historyLimit int
	defaultModel string
}

// New builds a tracker. Call Bootstrap before use.
func New(cfg Config) *Tracker {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("tracker")
	}
	ttl := cfg.DetailTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	t := &Tracker{
		ledger:       ledger.New(),
		model:        active.New(),
		selected:     domain.DraftID,
		backend:      cfg.Backend,
		details:      api.NewCachedDetails(cfg.Backend, ttl),
		store:        cfg.Store,
		tracer:       tracer,
		changes:      pubsub.NewBroker[Change](),
		historyLimit: cfg.HistoryLimit,
		defaultModel: cfg.Model,
	}
	if cfg.NewTransport != nil {
		t.transport = cfg.NewTransport(t.HandleEvent)
	}
	t.router = router.New(t.ledger, t.model,
		router.WithTracer(tracer),
		router.WithTerminalHook(t.sessionFinished),
	)
	return t
}

// Changes returns the change notification broker.
func (t *Tracker) Changes() *pubsub.Broker[Change] {
	return t.changes
}

// HandleEvent is the transport handler. It is called from channel reader
// goroutines; per-session order is preserved because each channel delivers
// synchronously.
func (t *Tracker) HandleEvent(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	disp := t.router.RouteEvent(context.Background(), ev)
	if disp == router.Discarded {
		return
	}
	check, _ := t.router.CheckForSession(ev.Session())
	if ev.Check() != 0 {
		check = ev.Check()
	}
	t.publish(ChangeRecord, check)
}

// sessionFinished runs under t.mu from inside RouteEvent.
func (t *Tracker) sessionFinished(session domain.SessionID, check domain.CheckID, kind events.Kind) {
	t.forgetSession(session)
	if t.transport != nil {
		t.transport.Close(session)
	}
	log.Info(log.CatTracker, "check finished", "check", check, "session", session, "kind", kind)
}

func (t *Tracker) forgetSession(session domain.SessionID) {
	if t.store == nil {
		return
	}
	if err := t.store.DeleteSession(session); err != nil {
		log.ErrorErr(log.CatStore, "forgetting session failed", err, "session", session)
	}
}

func (t *Tracker) persistSession(session domain.SessionID, check domain.CheckID) {
	if t.store == nil {
		return
	}
	b := domain.SessionBinding{Session: session, Check: check, RegisteredAt: time.Now()}
	if err := t.store.SaveSession(b); err != nil {
		log.ErrorErr(log.CatStore, "persisting session failed", err, "session", session, "check", check)
	}
}

func (t *Tracker) persistSelection() {
	if t.store == nil {
		return
	}
	if err := t.store.SetSelected(t.selected); err != nil {
		log.ErrorErr(log.CatStore, "persisting selection failed", err, "check", t.selected)
	}
}

func (t *Tracker) publish(kind ChangeKind, check domain.CheckID) {
	t.changes.Publish(pubsub.UpdatedEvent, Change{Kind: kind, CheckID: check})
}

// View returns the detail pane for the current selection.
func (t *Tracker) View() view.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, _ := t.ledger.Get(t.selected)
	return view.Select(t.selected, t.model.Snapshot(), rec)
}

// Records returns the history list, draft first then newest first.
func (t *Tracker) Records() []*domain.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.List()
}

// Record returns one ledger entry with its references.
func (t *Tracker) Record(id domain.CheckID) (*domain.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Get(id)
}

// Selected returns the selected check id.
func (t *Tracker) Selected() domain.CheckID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// ActiveSessions returns the sessions with open channels.
func (t *Tracker) ActiveSessions() []domain.SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.router.ActiveSessions()
}

// Close closes all channels and the change broker. It must not be called
// from the transport handler.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.persistSelection()
	t.mu.Unlock()

	// CloseAll waits for reader goroutines, which may be blocked on t.mu.
	if t.transport != nil {
		t.transport.CloseAll()
	}
	t.changes.Close()
	log.Info(log.CatTracker, "tracker closed")
}

func (t *Tracker) lockOpen() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func checkAttr(id domain.CheckID) attribute.KeyValue {
	return attribute.Int64(tracing.AttrCheckID, int64(id))
}

func sessionAttr(s domain.SessionID) attribute.KeyValue {
	return attribute.String(tracing.AttrSessionID, string(s))
}
