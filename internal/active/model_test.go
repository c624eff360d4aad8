package active

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/events"
)

func extracted(n int) events.ReferencesExtracted {
	refs := make([]domain.Reference, n)
	for i := range refs {
		refs[i] = domain.Reference{Title: string(rune('A' + i)), Status: domain.RefVerified}
	}
	return events.ReferencesExtracted{TotalRefs: n, References: refs}
}

func started(t *testing.T) *Model {
	t.Helper()
	m := New()
	m.Reset(10, "s1", domain.Source{Kind: domain.SourceURL, Value: "2401.00001"})
	return m
}

func TestModel_NewIsIdle(t *testing.T) {
	m := New()
	s := m.Snapshot()
	require.Equal(t, PhaseIdle, s.Phase)
	require.Equal(t, domain.CheckID(0), m.Tracking())
	require.False(t, s.HasLiveData())
}

func TestModel_ResetEntersChecking(t *testing.T) {
	m := started(t)
	s := m.Snapshot()
	require.Equal(t, PhaseChecking, s.Phase)
	require.Equal(t, domain.CheckID(10), s.CheckID)
	require.Equal(t, domain.SessionID("s1"), s.Session)
	require.False(t, s.HasLiveData(), "no event has arrived yet")
}

func TestModel_ReferencesExtractedResetsToPending(t *testing.T) {
	m := started(t)
	ch := m.Apply(extracted(3))
	require.True(t, ch.RefsChanged)
	require.Equal(t, -1, ch.RefIndex)

	s := m.Snapshot()
	require.Len(t, s.References, 3)
	for _, r := range s.References {
		require.Equal(t, domain.RefPending, r.Status)
	}
	require.Equal(t, 3, s.Stats.TotalRefs)
	require.Zero(t, s.Stats.ProcessedRefs)
	require.True(t, s.HasLiveData())
}

func TestModel_CheckingDoesNotDowngradeResolved(t *testing.T) {
	m := started(t)
	m.Apply(extracted(2))
	m.Apply(events.ReferenceResult{Index: 0, Result: domain.Reference{Status: domain.RefVerified}})

	ch := m.Apply(events.CheckingReference{Index: 0})
	require.True(t, ch.Ignored)
	require.Equal(t, domain.RefVerified, m.Snapshot().References[0].Status)

	ch = m.Apply(events.CheckingReference{Index: 1})
	require.False(t, ch.Ignored)
	require.Equal(t, 1, ch.RefIndex)
	require.Equal(t, domain.RefChecking, m.Snapshot().References[1].Status)
}

func TestModel_ReferenceResultIsIdempotent(t *testing.T) {
	m := started(t)
	m.Apply(extracted(3))
	ev := events.ReferenceResult{Index: 1, Result: domain.Reference{
		Status: domain.RefError,
		Errors: []domain.Issue{{Type: "year", Detail: "wrong year"}},
	}}

	m.Apply(ev)
	once := m.Snapshot().References
	m.Apply(ev)
	require.Equal(t, once, m.Snapshot().References)
	require.Equal(t, domain.RefError, once[1].Status)
}

func TestModel_OutOfRangeIndexIgnored(t *testing.T) {
	m := started(t)
	m.Apply(extracted(1))
	require.True(t, m.Apply(events.ReferenceResult{Index: 5}).Ignored)
	require.True(t, m.Apply(events.CheckingReference{Index: -1}).Ignored)
}

func TestModel_CompletedForcesProcessedEqualsTotal(t *testing.T) {
	m := started(t)
	m.Apply(extracted(3))
	m.Apply(events.SummaryUpdate{Stats: domain.Stats{TotalRefs: 3, ProcessedRefs: 1}})
	require.Equal(t, "Checked 1 of 3 references", m.Snapshot().StatusMessage)

	m.Apply(events.Completed{Stats: domain.Stats{Errors: 1}})
	s := m.Snapshot()
	require.Equal(t, PhaseCompleted, s.Phase)
	require.Equal(t, 3, s.Stats.TotalRefs)
	require.Equal(t, 3, s.Stats.ProcessedRefs)
	require.Equal(t, float64(100), s.Stats.ProgressPercent)
}

func TestModel_TerminalIsSticky(t *testing.T) {
	m := started(t)
	m.Apply(extracted(1))
	m.Apply(events.Completed{Stats: domain.Stats{TotalRefs: 1}})

	require.True(t, m.Apply(events.Error{Message: "late"}).Ignored)
	require.True(t, m.Apply(events.Started{Message: "again"}).Ignored)
	require.True(t, m.Apply(events.SummaryUpdate{Stats: domain.Stats{TotalRefs: 9}}).Ignored)

	s := m.Snapshot()
	require.Equal(t, PhaseCompleted, s.Phase)
	require.Equal(t, 1, s.Stats.TotalRefs)
	require.Empty(t, s.ErrorMessage)

	// Repeating the same terminal event is tolerated.
	require.False(t, m.Apply(events.Completed{Stats: domain.Stats{TotalRefs: 1}}).Ignored)

	// Reset is the only way out.
	m.Reset(11, "s2", domain.Source{})
	require.Equal(t, PhaseChecking, m.Snapshot().Phase)
}

func TestModel_ErrorAndCancelled(t *testing.T) {
	m := started(t)
	m.Apply(events.Error{Message: "missing field", Details: "title"})
	s := m.Snapshot()
	require.Equal(t, PhaseError, s.Phase)
	require.Equal(t, "missing field", s.ErrorMessage)
	require.Equal(t, "title", s.ErrorDetails)
	require.Equal(t, domain.StatusError, s.Phase.LedgerStatus())

	m = started(t)
	m.Apply(events.Cancelled{})
	require.Equal(t, PhaseCancelled, m.Snapshot().Phase)
	require.Equal(t, "Check cancelled", m.Snapshot().StatusMessage)
}

func TestModel_ConnectionErrorClearedByNextEvent(t *testing.T) {
	m := started(t)
	m.Apply(events.ConnectionError{Message: "malformed"})
	require.Equal(t, "malformed", m.Snapshot().Connection)
	m.Apply(events.Extracting{Message: "working", PaperTitle: "Paper"})
	s := m.Snapshot()
	require.Empty(t, s.Connection)
	require.Equal(t, "Paper", s.PaperTitle)
}

func TestModel_LoadFromRecord(t *testing.T) {
	m := New()
	m.LoadFrom(&domain.Record{
		ID:         11,
		Session:    "s2",
		Status:     domain.StatusInProgress,
		Title:      "T",
		Stats:      domain.Stats{TotalRefs: 2, ProcessedRefs: 1},
		References: []domain.Reference{{Status: domain.RefVerified}, {Status: domain.RefPending}},
	})
	s := m.Snapshot()
	require.Equal(t, domain.CheckID(11), m.Tracking())
	require.Equal(t, PhaseChecking, s.Phase)
	require.True(t, s.HasLiveData())

	s.References[0].Status = domain.RefError
	require.Equal(t, domain.RefVerified, m.Snapshot().References[0].Status, "snapshots are copies")

	m.Clear()
	require.Equal(t, PhaseIdle, m.Snapshot().Phase)
	require.Zero(t, m.Tracking())
}

func TestPhaseMapping(t *testing.T) {
	for _, p := range []Phase{PhaseChecking, PhaseCompleted, PhaseCancelled, PhaseError} {
		require.Equal(t, p, PhaseFor(p.LedgerStatus()))
	}
	require.Equal(t, domain.StatusIdle, PhaseIdle.LedgerStatus())
}
