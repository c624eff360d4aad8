package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// Builder accumulates history records and local session state, then writes
// the session state to a store in one go.
type Builder struct {
	t        *testing.T
	store    domain.SessionStore
	records  []*domain.Record
	bindings []domain.SessionBinding
	selected *domain.CheckID
}

// NewBuilder creates a builder. store may be nil when only records are
// needed.
func NewBuilder(t *testing.T, store domain.SessionStore) *Builder {
	t.Helper()
	return &Builder{t: t, store: store}
}

// WithRecord adds a history record with optional configuration.
func (b *Builder) WithRecord(id domain.CheckID, opts ...RecordOption) *Builder {
	rec := defaultRecord(id)
	for _, opt := range opts {
		opt(rec)
	}
	b.records = append(b.records, rec)
	return b
}

// WithSession persists a running session for check.
func (b *Builder) WithSession(session domain.SessionID, check domain.CheckID) *Builder {
	b.bindings = append(b.bindings, domain.SessionBinding{Session: session, Check: check})
	return b
}

// WithSelected persists the selection.
func (b *Builder) WithSelected(id domain.CheckID) *Builder {
	b.selected = &id
	return b
}

// Build writes sessions and selection to the store and returns copies of
// the records in the order they were added.
func (b *Builder) Build() []*domain.Record {
	b.t.Helper()
	if b.store != nil {
		for _, binding := range b.bindings {
			require.NoError(b.t, b.store.SaveSession(binding))
		}
		if b.selected != nil {
			require.NoError(b.t, b.store.SetSelected(*b.selected))
		}
	} else {
		require.Empty(b.t, b.bindings, "sessions need a store")
	}
	out := make([]*domain.Record, len(b.records))
	for i, r := range b.records {
		out[i] = r.Clone()
	}
	return out
}

// Record returns a single configured record.
func Record(id domain.CheckID, opts ...RecordOption) *domain.Record {
	rec := defaultRecord(id)
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}
