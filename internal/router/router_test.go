package router

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/zjrosen/refcheck/internal/active"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
	"github.com/zjrosen/refcheck/internal/ledger"
	"github.com/zjrosen/refcheck/internal/tracing"
)

type fixture struct {
	ledger *ledger.Ledger
	model  *active.Model
	router *Router
	ended  []domain.CheckID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.New(),
		model:  active.New(),
	}
	opts = append([]Option{
		WithTerminalHook(func(_ domain.SessionID, c domain.CheckID, _ events.Kind) {
			f.ended = append(f.ended, c)
		}),
	}, opts...)
	f.router = New(f.ledger, f.model, opts...)
	return f
}

// start mimics the tracker: optimistic entry, session start, focus.
func (f *fixture) start(t *testing.T, session domain.SessionID, check domain.CheckID) {
	t.Helper()
	_, err := f.ledger.CreateOptimistic(check, session, domain.Source{Kind: domain.SourceURL, Value: "x"}, "")
	require.NoError(t, err)
	require.NoError(t, f.router.StartSession(session, check))
	require.NoError(t, f.router.Focus(session))
}

func (f *fixture) route(ev events.Event) Disposition {
	return f.router.RouteEvent(context.Background(), ev)
}

func env(s domain.SessionID) events.Envelope {
	return events.Envelope{SessionID: s}
}

func extracted(s domain.SessionID, n int) events.ReferencesExtracted {
	refs := make([]domain.Reference, n)
	for i := range refs {
		refs[i] = domain.Reference{Title: fmt.Sprintf("ref %d", i)}
	}
	return events.ReferencesExtracted{Envelope: env(s), TotalRefs: n, References: refs}
}

func TestRouter_ConcurrentChecksScenario(t *testing.T) {
	f := newFixture(t)

	// Submit check 10; the entry exists before any event.
	f.start(t, "s1", 10)
	rec, ok := f.ledger.Get(10)
	require.True(t, ok)
	require.Equal(t, domain.StatusInProgress, rec.Status)

	require.Equal(t, Focused, f.route(extracted("s1", 3)))
	rec, _ = f.ledger.Get(10)
	require.Equal(t, 3, rec.Stats.TotalRefs)
	require.Zero(t, rec.Stats.ProcessedRefs)

	// A second check takes focus while s1 is still open.
	f.start(t, "s2", 11)
	require.Equal(t, domain.SessionID("s2"), f.router.FocusedSession())
	require.ElementsMatch(t, []domain.SessionID{"s1", "s2"}, f.router.ActiveSessions())

	// Wire index 2 is 0-based index 1.
	disp := f.route(events.ReferenceResult{Envelope: env("s1"), Index: 1, Result: domain.Reference{Status: domain.RefError}})
	require.Equal(t, Background, disp)
	rec10, _ := f.ledger.Get(10)
	require.Equal(t, domain.RefError, rec10.References[1].Status)
	rec11, _ := f.ledger.Get(11)
	require.Equal(t, domain.StatusInProgress, rec11.Status)
	require.Nil(t, rec11.References)
	require.Empty(t, f.model.Snapshot().References, "the focused model is untouched by s1")

	require.Equal(t, Focused, f.route(events.Completed{Envelope: env("s2"), Stats: domain.Stats{TotalRefs: 1}}))
	rec11, _ = f.ledger.Get(11)
	require.Equal(t, domain.StatusCompleted, rec11.Status)
	require.Equal(t, 1, rec11.Stats.ProcessedRefs)
	rec10, _ = f.ledger.Get(10)
	require.Equal(t, domain.StatusInProgress, rec10.Status)

	require.Equal(t, []domain.CheckID{11}, f.ended)
	require.Equal(t, []domain.SessionID{"s1"}, f.router.ActiveSessions())
}

func TestRouter_FocusedEventsMirrorIntoLedger(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)

	f.route(events.Started{Envelope: env("s1"), PaperTitle: "Attention"})
	f.route(extracted("s1", 2))
	f.route(events.ReferenceResult{Envelope: env("s1"), Index: 0, Result: domain.Reference{Status: domain.RefVerified}})
	f.route(events.SummaryUpdate{Envelope: env("s1"), Stats: domain.Stats{TotalRefs: 2, ProcessedRefs: 1, Verified: 1}})

	live := f.model.Snapshot()
	rec, _ := f.ledger.Get(10)
	require.Equal(t, live.References, rec.References)
	require.Equal(t, live.Stats, rec.Stats)
	require.Equal(t, "Attention", rec.Title)
	require.Equal(t, "Checked 1 of 2 references", rec.StatusMessage)
}

func TestRouter_FocusSwitchCarriesBackgroundProgress(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	f.start(t, "s2", 11)

	f.route(extracted("s1", 2))
	f.route(events.ReferenceResult{Envelope: env("s1"), Index: 0, Result: domain.Reference{Status: domain.RefWarning}})

	require.NoError(t, f.router.Focus("s1"))
	live := f.model.Snapshot()
	require.Equal(t, domain.CheckID(10), live.CheckID)
	require.Len(t, live.References, 2)
	require.Equal(t, domain.RefWarning, live.References[0].Status)

	require.Equal(t, Focused, f.route(events.ReferenceResult{Envelope: env("s1"), Index: 1, Result: domain.Reference{Status: domain.RefVerified}}))
	require.Equal(t, domain.RefVerified, f.model.Snapshot().References[1].Status)
	require.Error(t, f.router.Focus("nope"))
}

func TestRouter_UnregisteredSessionDiscarded(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)

	require.Equal(t, Discarded, f.route(events.Started{Envelope: env("ghost")}))
	rec, _ := f.ledger.Get(10)
	require.Equal(t, "Submitted", rec.StatusMessage)

	// An explicit, known check id is still honoured, but only the focused
	// session drives the live model.
	disp := f.route(events.SummaryUpdate{Envelope: events.Envelope{SessionID: "ghost", CheckID: 10}, Stats: domain.Stats{TotalRefs: 4}})
	require.Equal(t, Background, disp)
	rec, _ = f.ledger.Get(10)
	require.Equal(t, 4, rec.Stats.TotalRefs)
	require.Zero(t, f.model.Snapshot().Stats.TotalRefs)

	require.Equal(t, Discarded, f.route(events.Started{Envelope: events.Envelope{SessionID: "ghost", CheckID: 99}}))
}

func TestRouter_EmptySessionFallsBackToFocused(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, Discarded, f.route(events.Started{}), "nothing focused")

	f.start(t, "s1", 10)
	require.Equal(t, Focused, f.route(extracted("", 2)))
	rec, _ := f.ledger.Get(10)
	require.Equal(t, 2, rec.Stats.TotalRefs)
}

func TestRouter_LateEventsAfterTerminal(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	f.start(t, "s2", 11)
	f.route(extracted("s1", 2))
	f.route(events.Completed{Envelope: env("s1"), Stats: domain.Stats{TotalRefs: 2}})
	require.Equal(t, []domain.CheckID{10}, f.ended)

	_, live := f.router.Mapping()["s1"]
	require.False(t, live)
	c, ok := f.router.CheckForSession("s1")
	require.True(t, ok)
	require.Equal(t, domain.CheckID(10), c)

	// A late result still resolves and is applied idempotently.
	result := events.ReferenceResult{Envelope: env("s1"), Index: 0, Result: domain.Reference{Status: domain.RefVerified}}
	require.Equal(t, Background, f.route(result))
	require.Equal(t, Background, f.route(result))
	require.Equal(t, Background, f.route(events.Error{Envelope: env("s1"), Message: "late"}))

	rec, _ := f.ledger.Get(10)
	require.Equal(t, domain.StatusCompleted, rec.Status)
	require.Equal(t, domain.RefVerified, rec.References[0].Status)
	require.Equal(t, []domain.CheckID{10}, f.ended, "terminal hook fires once")
}

func TestRouter_RetiredTableIsBounded(t *testing.T) {
	f := newFixture(t, WithRetiredLimit(2))
	for i := 1; i <= 3; i++ {
		s := domain.SessionID(fmt.Sprintf("s%d", i))
		f.start(t, s, domain.CheckID(i))
		f.router.EndSession(s)
	}
	_, ok := f.router.CheckForSession("s1")
	require.False(t, ok)
	_, ok = f.router.CheckForSession("s3")
	require.True(t, ok)
}

func TestRouter_AdoptsSoleActiveSession(t *testing.T) {
	f := newFixture(t)
	_, _ = f.ledger.CreateOptimistic(10, "s1", domain.Source{}, "")
	require.NoError(t, f.router.RegisterRediscoveredSession("s1", 10))
	require.Empty(t, f.router.FocusedSession())

	require.Equal(t, Focused, f.route(extracted("s1", 1)))
	require.Equal(t, domain.SessionID("s1"), f.router.FocusedSession())
	require.Equal(t, domain.CheckID(10), f.model.Tracking())
}

func TestRouter_NoAdoptionWithSeveralSessions(t *testing.T) {
	f := newFixture(t)
	for i, s := range []domain.SessionID{"s1", "s2"} {
		_, _ = f.ledger.CreateOptimistic(domain.CheckID(10+i), s, domain.Source{}, "")
		require.NoError(t, f.router.RegisterRediscoveredSession(s, domain.CheckID(10+i)))
	}
	require.Equal(t, Background, f.route(extracted("s1", 1)))
	require.Empty(t, f.router.FocusedSession())
}

func TestRouter_StartSessionValidation(t *testing.T) {
	f := newFixture(t)

	require.True(t, domain.IsCheckNotFound(f.router.StartSession("s1", 10)))
	require.ErrorIs(t, f.router.StartSession("s1", domain.DraftID), domain.ErrDraftImmutable)
	require.Error(t, f.router.StartSession("", 10))

	_, _ = f.ledger.CreateOptimistic(10, "s1", domain.Source{}, "")
	require.NoError(t, f.router.StartSession("s1", 10))
	require.Equal(t, []domain.SessionID{"s1"}, f.router.ActiveSessions())

	// A channel that fails to open leaves the mapping in place.
	f.router.ChannelClosed("s1")
	_, mapped := f.router.Mapping()["s1"]
	require.True(t, mapped)
	require.Empty(t, f.router.ActiveSessions())
}

func TestRouter_AdoptsAfterFocusedSessionEnded(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	require.Equal(t, Focused, f.route(events.Completed{Envelope: env("s1")}))
	require.Equal(t, domain.SessionID("s1"), f.router.FocusedSession())

	_, _ = f.ledger.CreateOptimistic(11, "s2", domain.Source{}, "")
	require.NoError(t, f.router.RegisterRediscoveredSession("s2", 11))

	require.Equal(t, Focused, f.route(extracted("s2", 2)))
	require.Equal(t, domain.SessionID("s2"), f.router.FocusedSession())
	require.Equal(t, domain.CheckID(11), f.model.Tracking())
	require.Len(t, f.model.Snapshot().References, 2)
}

func TestRouter_SettleEndsSessionOfTerminalEntry(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	f.route(extracted("s1", 1))

	require.False(t, f.router.Settle(10), "entry is still running")

	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.ledger.ApplyDetail(&domain.Record{
		ID:          10,
		Title:       "Attention Is All You Need",
		Status:      domain.StatusCompleted,
		Stats:       domain.Stats{TotalRefs: 1, ProcessedRefs: 1},
		CompletedAt: &done,
		References:  []domain.Reference{{Title: "ref 0", Status: domain.RefVerified}},
	})
	require.True(t, f.router.Settle(10))

	require.Empty(t, f.router.Mapping())
	require.Empty(t, f.router.ActiveSessions())
	require.Equal(t, []domain.CheckID{10}, f.ended)
	require.Equal(t, active.PhaseCompleted, f.model.Snapshot().Phase)

	c, ok := f.router.CheckForSession("s1")
	require.True(t, ok, "late events still resolve")
	require.Equal(t, domain.CheckID(10), c)
	require.False(t, f.router.Settle(10))
}

func TestRouter_ReplacingSessionForCheck(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	require.NoError(t, f.router.StartSession("s1b", 10))

	s, ok := f.router.SessionForCheck(10)
	require.True(t, ok)
	require.Equal(t, domain.SessionID("s1b"), s)
	require.Len(t, f.router.Mapping(), 1)
}

func TestRouter_ClosedShrinksActiveSet(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	f.route(events.Closed{Envelope: env("s1"), Code: 1006})

	require.Empty(t, f.router.ActiveSessions())
	_, mapped := f.router.Mapping()["s1"]
	require.True(t, mapped)
	require.True(t, f.router.MarkOpen("s1"))
	require.False(t, f.router.MarkOpen("unknown"))
}

func TestRouter_ForgetCheck(t *testing.T) {
	f := newFixture(t)
	f.start(t, "s1", 10)
	f.router.ForgetCheck(10)
	require.Empty(t, f.router.Mapping())
	require.Empty(t, f.router.FocusedSession())
	_, ok := f.router.CheckForSession("s1")
	require.False(t, ok)
}

func TestRouter_PanicIsolatedToEvent(t *testing.T) {
	f := newFixture(t, WithTerminalHook(func(domain.SessionID, domain.CheckID, events.Kind) {
		panic("hook exploded")
	}))
	f.start(t, "s1", 10)
	require.Equal(t, Failed, f.route(events.Completed{Envelope: env("s1")}))

	rec, _ := f.ledger.Get(10)
	require.Equal(t, domain.StatusCompleted, rec.Status)

	f.start(t, "s2", 11)
	require.Equal(t, Focused, f.route(extracted("s2", 1)))
}

func TestRouter_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	f := newFixture(t, WithTracer(tp.Tracer("test")))
	f.start(t, "s1", 10)

	f.route(extracted("s1", 1))
	f.route(events.Started{Envelope: env("ghost")})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, tracing.SpanRoute, spans[0].Name())
	attrs := map[string]string{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, string(Discarded), attrs[tracing.AttrDisposition])
}

// TestRouter_InterleavingIsolation checks that for any interleaving of two
// sessions' event streams, each ledger entry reflects only its own events.
func TestRouter_InterleavingIsolation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		type stream struct {
			session domain.SessionID
			check   domain.CheckID
			evs     []events.Event
		}
		gen := func(s domain.SessionID, label string) []events.Event {
			n := rapid.IntRange(1, 5).Draw(rt, label+"-refs")
			evs := []events.Event{events.Started{Envelope: env(s), PaperTitle: "paper " + string(s)}, extracted(s, n)}
			for i := 0; i < n; i++ {
				st := rapid.SampledFrom([]domain.RefStatus{domain.RefVerified, domain.RefError, domain.RefWarning}).Draw(rt, label+"-status")
				evs = append(evs,
					events.CheckingReference{Envelope: env(s), Index: i},
					events.ReferenceResult{Envelope: env(s), Index: i, Result: domain.Reference{Status: st, Title: fmt.Sprintf("%s-%d", s, i)}},
				)
			}
			if rapid.Bool().Draw(rt, label+"-finish") {
				evs = append(evs, events.Completed{Envelope: env(s), Stats: domain.Stats{TotalRefs: n}})
			}
			return evs
		}
		a := stream{session: "A", check: 1, evs: gen("A", "a")}
		b := stream{session: "B", check: 2, evs: gen("B", "b")}

		// Reference result: each stream applied alone.
		solo := func(s stream) *domain.Record {
			l := ledger.New()
			_, _ = l.CreateOptimistic(s.check, s.session, domain.Source{}, "")
			for _, ev := range s.evs {
				_, _ = l.Apply(s.check, ev)
			}
			r, _ := l.Get(s.check)
			return r
		}
		wantA, wantB := solo(a), solo(b)

		l := ledger.New()
		m := active.New()
		r := New(l, m)
		for _, s := range []stream{a, b} {
			_, _ = l.CreateOptimistic(s.check, s.session, domain.Source{}, "")
			require.NoError(rt, r.StartSession(s.session, s.check))
		}
		if rapid.Bool().Draw(rt, "focusA") {
			require.NoError(rt, r.Focus("A"))
		}

		ia, ib := 0, 0
		for ia < len(a.evs) || ib < len(b.evs) {
			pickA := ib >= len(b.evs) || (ia < len(a.evs) && rapid.Bool().Draw(rt, "pickA"))
			if pickA {
				r.RouteEvent(context.Background(), a.evs[ia])
				ia++
			} else {
				r.RouteEvent(context.Background(), b.evs[ib])
				ib++
			}
		}

		gotA, _ := l.Get(1)
		gotB, _ := l.Get(2)
		require.Equal(rt, wantA.References, gotA.References)
		require.Equal(rt, wantB.References, gotB.References)
		require.Equal(rt, wantA.Status, gotA.Status)
		require.Equal(rt, wantB.Status, gotB.Status)
		require.Equal(rt, wantA.Stats.TotalRefs, gotA.Stats.TotalRefs)
		require.Equal(rt, wantB.Stats.ProcessedRefs, gotB.Stats.ProcessedRefs)
		require.Equal(rt, wantA.Title, gotA.Title)
		require.Equal(rt, wantB.Title, gotB.Title)
	})
}
