package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

func TestBuilder_WithRecordDefaults(t *testing.T) {
	recs := NewBuilder(t, nil).WithRecord(3).Build()
	require.Len(t, recs, 1)
	require.Equal(t, domain.CheckID(3), recs[0].ID)
	require.Equal(t, domain.StatusCompleted, recs[0].Status)
	require.Equal(t, domain.SourceURL, recs[0].Source.Kind)
}

func TestBuilder_StatusTracksCompletion(t *testing.T) {
	running := Record(1, Status(domain.StatusInProgress))
	require.Nil(t, running.CompletedAt)

	failed := Record(2, Failed("boom"))
	require.Equal(t, domain.StatusError, failed.Status)
	require.Equal(t, "boom", failed.ErrorMessage)
	require.NotNil(t, failed.CompletedAt)
}

func TestBuilder_RefsDriveCounters(t *testing.T) {
	rec := Record(4, Refs(Ref("a", domain.RefVerified), RefWithError("b", "doi", "mismatch"), Ref("c", domain.RefPending)))
	require.True(t, rec.DetailLoaded)
	require.Equal(t, 3, rec.Stats.TotalRefs)
	require.Equal(t, 2, rec.Stats.ProcessedRefs)
	require.Equal(t, 1, rec.Stats.Verified)
	require.Equal(t, 1, rec.Stats.Errors)
}

func TestBuilder_WritesSessionState(t *testing.T) {
	db := NewStateDB(t)
	store := db.SessionStore()

	NewBuilder(t, store).
		WithRecord(8, Status(domain.StatusInProgress)).
		WithSession("s8", 8).
		WithSelected(8).
		Build()

	sessions, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, domain.SessionID("s8"), sessions[0].Session)

	selected, err := store.Selected()
	require.NoError(t, err)
	require.Equal(t, domain.CheckID(8), selected)
}

func TestBuilder_BuildReturnsCopies(t *testing.T) {
	b := NewBuilder(t, nil).WithRecord(1, Refs(Ref("a", domain.RefVerified)))
	first := b.Build()
	first[0].References[0].Title = "changed"
	require.Equal(t, "a", b.Build()[0].References[0].Title)
}

func TestPreset_StandardHistory(t *testing.T) {
	db := NewStateDB(t)
	recs := NewBuilder(t, db.SessionStore()).WithStandardHistory().Build()

	ids := make([]domain.CheckID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	require.Equal(t, []domain.CheckID{8, 7, 6, 5}, ids)
	require.Equal(t, domain.PaperStats{Verified: 1, WithErrors: 1, WarningsOnly: 1, Unverified: 1}, recs[3].Paper())

	sessions, err := db.SessionStore().ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, domain.SessionID("s8"), sessions[0].Session)
	require.Equal(t, domain.CheckID(8), sessions[0].Check)
}
