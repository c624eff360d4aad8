package app

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/active"
	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/pubsub"
	"github.com/zjrosen/refcheck/internal/tracker"
	"github.com/zjrosen/refcheck/internal/view"
)

type fakeTracker struct {
	records   []*domain.Record
	selected  domain.CheckID
	submitted []api.Submission
	cancelled []domain.CheckID
	deleted   []domain.CheckID
	renamed   map[domain.CheckID]string
	broker    *pubsub.Broker[tracker.Change]
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		records: []*domain.Record{
			domain.NewDraft(),
			{ID: 11, Title: "Second", Status: domain.StatusInProgress},
			{ID: 10, Title: "First", Status: domain.StatusCompleted, References: []domain.Reference{{Title: "r", Status: domain.RefVerified}}},
		},
		renamed: map[domain.CheckID]string{},
		broker:  pubsub.NewBroker[tracker.Change](),
	}
}

func (f *fakeTracker) Records() []*domain.Record { return f.records }
func (f *fakeTracker) Selected() domain.CheckID  { return f.selected }

func (f *fakeTracker) View() view.View {
	for _, r := range f.records {
		if r.ID == f.selected {
			return view.Select(f.selected, active.State{}, r)
		}
	}
	return view.Select(f.selected, active.State{}, nil)
}

func (f *fakeTracker) Select(_ context.Context, id domain.CheckID) error {
	f.selected = id
	return nil
}

func (f *fakeTracker) StartCheck(_ context.Context, sub api.Submission) (api.Started, error) {
	f.submitted = append(f.submitted, sub)
	return api.Started{CheckID: 12, SessionID: "s12"}, nil
}

func (f *fakeTracker) Cancel(_ context.Context, id domain.CheckID) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeTracker) Delete(_ context.Context, id domain.CheckID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTracker) Rename(_ context.Context, id domain.CheckID, label string) error {
	f.renamed[id] = label
	return nil
}

func (f *fakeTracker) NewDraft()                               { f.selected = domain.DraftID }
func (f *fakeTracker) Rediscover(context.Context) error        { return nil }
func (f *fakeTracker) Changes() *pubsub.Broker[tracker.Change] { return f.broker }

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command once, feeding an
// operation result back into the model. Only use it for keys whose command
// is an operation or nil; timer commands would block.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, cmd := m.Update(keyMsg(k))
	m = next.(Model)
	if cmd != nil {
		if msg, ok := cmd().(opDoneMsg); ok {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func newModel(t *testing.T, f *fakeTracker) Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, f)
}

func TestApp_StartsInComposeOnDraft(t *testing.T) {
	m := newModel(t, newFakeTracker())
	require.Equal(t, inputCompose, m.mode)
	require.Equal(t, view.Compose, m.detail.Mode)
	require.Contains(t, m.View(), "New check")
}

func TestApp_SubmitFromCompose(t *testing.T) {
	f := newFakeTracker()
	m := newModel(t, f)
	m = typeText(m, "https://arxiv.org/abs/1706.03762")
	m = press(t, m, "enter")

	require.Len(t, f.submitted, 1)
	require.Equal(t, domain.SourceURL, f.submitted[0].Source.Kind)
	require.Equal(t, inputNone, m.mode)
	require.Equal(t, "Check started", m.toast.Message())
}

func TestApp_EmptySubmitKeepsComposing(t *testing.T) {
	f := newFakeTracker()
	m := newModel(t, f)
	next, _ := m.Update(keyMsg("enter"))
	m = next.(Model)
	require.Empty(t, f.submitted)
	require.Equal(t, inputCompose, m.mode)
	require.Equal(t, "nothing to check", m.toast.Message())
}

func TestApp_NavigateSelects(t *testing.T) {
	f := newFakeTracker()
	m := newModel(t, f)
	m = press(t, m, "esc")
	m = press(t, m, "down")
	require.Equal(t, domain.CheckID(11), f.selected)
	m = press(t, m, "down")
	require.Equal(t, domain.CheckID(10), f.selected)
	require.Equal(t, 2, m.cursor)
	require.Contains(t, m.View(), "First")

	m = press(t, m, "down")
	require.Equal(t, 2, m.cursor, "cursor stops at the end")
}

func TestApp_CancelDeleteRename(t *testing.T) {
	f := newFakeTracker()
	f.selected = 11
	m := newModel(t, f)
	require.Equal(t, inputNone, m.mode)

	m = press(t, m, "c")
	require.Equal(t, []domain.CheckID{11}, f.cancelled)

	m = press(t, m, "r")
	require.Equal(t, inputRename, m.mode)
	m = typeText(m, "Transformers")
	m = press(t, m, "enter")
	require.Equal(t, "Transformers", f.renamed[11])

	m = press(t, m, "d")
	require.Equal(t, []domain.CheckID{11}, f.deleted)
}

func TestApp_DraftIgnoresCheckActions(t *testing.T) {
	f := newFakeTracker()
	m := newModel(t, f)
	m = press(t, m, "esc")
	m = press(t, m, "c")
	m = press(t, m, "d")
	require.Empty(t, f.cancelled)
	require.Empty(t, f.deleted)
	require.Equal(t, inputNone, m.mode)
}

func TestApp_ChangeEventRefreshes(t *testing.T) {
	f := newFakeTracker()
	m := newModel(t, f)
	f.selected = 10
	next, cmd := m.Update(pubsub.Event[tracker.Change]{Payload: tracker.Change{Kind: tracker.ChangeSelection, CheckID: 10}})
	m = next.(Model)
	require.NotNil(t, cmd, "listener is re-armed")
	require.Equal(t, 2, m.cursor)
	require.Equal(t, view.Stored, m.detail.Mode)
}

func TestApp_FailedOperationShowsNotice(t *testing.T) {
	m := newModel(t, newFakeTracker())
	next, _ := m.Update(opDoneMsg{op: "cancel", err: context.DeadlineExceeded})
	m = next.(Model)
	require.Contains(t, m.View(), "cancel failed")
}

func TestApp_Quit(t *testing.T) {
	f := newFakeTracker()
	f.selected = 10
	m := newModel(t, f)
	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestApp_WideTitlesFitTheListPane(t *testing.T) {
	f := newFakeTracker()
	f.records[1].Title = "注意力就是你所需要的一切：基于自注意力机制的序列转换模型"
	m := newModel(t, f)

	var found bool
	for _, line := range strings.Split(m.renderList(), "\n") {
		require.LessOrEqual(t, lipgloss.Width(line), listWidth-2, "line %q", line)
		if strings.Contains(line, "注意力") {
			found = true
			require.Contains(t, line, "...")
		}
	}
	require.True(t, found)
}

func TestApp_ReferenceTitlesAreCut(t *testing.T) {
	f := newFakeTracker()
	f.selected = 10
	f.records[2].References = []domain.Reference{{Title: strings.Repeat("引用", 50), Status: domain.RefVerified}}
	m := newModel(t, f)

	for _, line := range strings.Split(m.renderDetail(), "\n") {
		if strings.Contains(line, "引用") {
			require.Contains(t, line, "...")
			require.LessOrEqual(t, lipgloss.Width(line), 5+60+2+len("verified"))
		}
	}
}
