package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/transport"
)

type fakeBackend struct {
	mu sync.Mutex

	nextID      domain.CheckID
	submitted   []api.Submission
	submitErr   error
	cancelled   []domain.SessionID
	cancelErr   error
	deleted     []domain.CheckID
	deleteErr   error
	renamed     map[domain.CheckID]string
	history     []*domain.Record
	historyErr  error
	details     map[domain.CheckID]*domain.Record
	detailErr   error
	detailCalls int
	active      []api.ActiveSession
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID:  10,
		renamed: make(map[domain.CheckID]string),
		details: make(map[domain.CheckID]*domain.Record),
	}
}

func (f *fakeBackend) SubmitCheck(_ context.Context, sub api.Submission) (api.Started, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return api.Started{}, f.submitErr
	}
	f.submitted = append(f.submitted, sub)
	id := f.nextID
	f.nextID++
	return api.Started{
		SessionID: domain.SessionID(fmt.Sprintf("s%d", id)),
		CheckID:   id,
		Source:    sub.Source.Display(),
	}, nil
}

func (f *fakeBackend) Cancel(_ context.Context, s domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, s)
	return f.cancelErr
}

func (f *fakeBackend) ListChecks(context.Context, int) ([]*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Record, 0, len(f.history))
	for _, r := range f.history {
		out = append(out, r.Clone())
	}
	return out, f.historyErr
}

func (f *fakeBackend) GetCheckDetail(_ context.Context, id domain.CheckID) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	rec, ok := f.details[id]
	if !ok {
		return nil, &api.RequestError{StatusCode: 404, Message: "not found"}
	}
	return rec.Clone(), nil
}

func (f *fakeBackend) Rename(_ context.Context, id domain.CheckID, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed[id] = label
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, id domain.CheckID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) ListActiveSessions(context.Context) ([]api.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls
}

type fakeTransport struct {
	mu       sync.Mutex
	handler  transport.Handler
	opened   []domain.SessionID
	closed   []domain.SessionID
	openErr  error
	closeAll int

	// hold stalls the handshake of a session until its channel is closed;
	// dialing is told when a held handshake starts.
	hold    map[domain.SessionID]chan struct{}
	dialing chan domain.SessionID
}

func (f *fakeTransport) holdDial(s domain.SessionID) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold == nil {
		f.hold = make(map[domain.SessionID]chan struct{})
	}
	gate := make(chan struct{})
	f.hold[s] = gate
	f.dialing = make(chan domain.SessionID, 1)
	return func() { close(gate) }
}

func (f *fakeTransport) Open(ctx context.Context, s domain.SessionID) error {
	f.mu.Lock()
	gate, dialing := f.hold[s], f.dialing
	f.mu.Unlock()
	if gate != nil {
		dialing <- s
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, s)
	return nil
}

func (f *fakeTransport) openedSessions() []domain.SessionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.opened)
}

func (f *fakeTransport) Close(s domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, s)
}

func (f *fakeTransport) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeAll++
}

type memStore struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]domain.CheckID
	order    []domain.SessionID
	selected domain.CheckID
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[domain.SessionID]domain.CheckID)}
}

func (m *memStore) SaveSession(b domain.SessionBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[b.Session]; !ok {
		m.order = append(m.order, b.Session)
	}
	m.sessions[b.Session] = b.Check
	return nil
}

func (m *memStore) DeleteSession(s domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s)
	for i, x := range m.order {
		if x == s {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) ListSessions() ([]domain.SessionBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionBinding, 0, len(m.order))
	for _, s := range m.order {
		out = append(out, domain.SessionBinding{Session: s, Check: m.sessions[s]})
	}
	return out, nil
}

func (m *memStore) SetSelected(id domain.CheckID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = id
	return nil
}

func (m *memStore) Selected() (domain.CheckID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) has(s domain.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[s]
	return ok
}

var errBoom = errors.New("boom")
