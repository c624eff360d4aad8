// Package app contains the root application model.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/refcheck/internal/api"
	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/keys"
	"github.com/zjrosen/refcheck/internal/log"
	"github.com/zjrosen/refcheck/internal/pubsub"
	"github.com/zjrosen/refcheck/internal/tracker"
	"github.com/zjrosen/refcheck/internal/ui/styles"
	"github.com/zjrosen/refcheck/internal/ui/toaster"
	"github.com/zjrosen/refcheck/internal/view"
)

const (
	listWidth        = 38
	rediscoverPeriod = 30 * time.Second
)

// Tracker is the subset of *tracker.Tracker the UI drives.
type Tracker interface {
	Records() []*domain.Record
	View() view.View
	Selected() domain.CheckID
	Select(ctx context.Context, id domain.CheckID) error
	StartCheck(ctx context.Context, sub api.Submission) (api.Started, error)
	Cancel(ctx context.Context, id domain.CheckID) error
	Delete(ctx context.Context, id domain.CheckID) error
	Rename(ctx context.Context, id domain.CheckID, label string) error
	NewDraft()
	Rediscover(ctx context.Context) error
	Changes() *pubsub.Broker[tracker.Change]
}

type inputMode int

const (
	inputNone inputMode = iota
	inputCompose
	inputRename
)

// opDoneMsg reports the outcome of a tracker operation run as a command.
type opDoneMsg struct {
	op  string
	err error
}

type rediscoverTickMsg struct{}

// Model is the root application state.
type Model struct {
	ctx      context.Context
	tracker  Tracker
	listener *pubsub.ContinuousListener[tracker.Change]

	keys     keys.KeyMap
	help     help.Model
	showHelp bool
	input    textinput.Model
	spinner  spinner.Model
	mode     inputMode

	records []*domain.Record
	cursor  int
	detail  view.View
	toast   toaster.Model

	width  int
	height int
}

// New creates the root model. ctx bounds the change subscription.
func New(ctx context.Context, t Tracker) Model {
	ti := textinput.New()
	ti.Placeholder = "URL, arXiv id, PDF path or pasted references"
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		tracker:  t,
		listener: pubsub.NewContinuousListener[tracker.Change](ctx, t.Changes()),
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		input:    ti,
		spinner:  sp,
		toast:    toaster.New(),
	}
	m.refresh()
	if m.detail.Mode == view.Compose {
		m.startInput(inputCompose, "")
	}
	return m
}

// Init starts the change listener, the spinner and periodic rediscovery.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.listener.Listen(),
		m.spinner.Tick,
		rediscoverTick(),
		textinput.Blink,
	)
}

func rediscoverTick() tea.Cmd {
	return tea.Tick(rediscoverPeriod, func(time.Time) tea.Msg { return rediscoverTickMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, m.width-listWidth-10)
		return m, nil

	case pubsub.Event[tracker.Change]:
		m.refresh()
		return m, m.listener.Listen()

	case opDoneMsg:
		m.refresh()
		if msg.err != nil {
			log.ErrorErr(log.CatUI, "operation failed", msg.err, "op", msg.op)
			return m.notify(fmt.Sprintf("%s failed: %v", msg.op, msg.err), toaster.StyleError)
		}
		if text, ok := successText[msg.op]; ok {
			return m.notify(text, toaster.StyleSuccess)
		}
		return m, nil

	case toaster.DismissMsg:
		m.toast = m.toast.Update(msg)
		return m, nil

	case rediscoverTickMsg:
		return m, tea.Batch(m.run("reconnect", func(ctx context.Context) error {
			return m.tracker.Rediscover(ctx)
		}), rediscoverTick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sel := m.selected()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, m.keys.Up):
		return m.move(-1)
	case key.Matches(msg, m.keys.Down):
		return m.move(1)
	case key.Matches(msg, m.keys.Enter):
		if sel.IsDraft() {
			m.startInput(inputCompose, "")
		}
	case key.Matches(msg, m.keys.New):
		m.tracker.NewDraft()
		m.refresh()
		m.startInput(inputCompose, "")
	case key.Matches(msg, m.keys.Cancel):
		if !sel.IsDraft() {
			return m, m.run("cancel", func(ctx context.Context) error { return m.tracker.Cancel(ctx, sel) })
		}
	case key.Matches(msg, m.keys.Delete):
		if !sel.IsDraft() {
			return m, m.run("delete", func(ctx context.Context) error { return m.tracker.Delete(ctx, sel) })
		}
	case key.Matches(msg, m.keys.Rename):
		if !sel.IsDraft() {
			m.startInput(inputRename, m.detail.Label)
		}
	case key.Matches(msg, m.keys.Reload):
		return m, m.run("reconnect", func(ctx context.Context) error { return m.tracker.Rediscover(ctx) })
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.stopInput()
		return m, nil
	case msg.Type == tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		sel := m.selected()
		m.stopInput()
		switch mode {
		case inputCompose:
			if value == "" {
				m.startInput(inputCompose, "")
				return m.notify("nothing to check", toaster.StyleWarn)
			}
			src := api.SourceFromInput(value)
			return m, m.run("submit", func(ctx context.Context) error {
				_, err := m.tracker.StartCheck(ctx, api.Submission{Source: src})
				return err
			})
		case inputRename:
			return m, m.run("rename", func(ctx context.Context) error { return m.tracker.Rename(ctx, sel, value) })
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// successText is the toast shown when an operation completes.
var successText = map[string]string{
	"submit": "Check started",
	"cancel": "Check cancelled",
	"delete": "Check deleted",
	"rename": "Check renamed",
}

func (m Model) notify(text string, style toaster.Style) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.toast, cmd = m.toast.Show(text, style, toaster.DefaultDuration)
	return m, cmd
}

func (m *Model) startInput(mode inputMode, value string) {
	m.mode = mode
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) stopInput() {
	m.mode = inputNone
	m.input.Blur()
	m.input.Reset()
}

func (m Model) move(delta int) (tea.Model, tea.Cmd) {
	if len(m.records) == 0 {
		return m, nil
	}
	next := min(max(m.cursor+delta, 0), len(m.records)-1)
	if next == m.cursor {
		return m, nil
	}
	m.cursor = next
	id := m.records[next].ID
	return m, m.run("load", func(ctx context.Context) error { return m.tracker.Select(ctx, id) })
}

// run executes fn off the update loop.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) refresh() {
	m.records = m.tracker.Records()
	sel := m.tracker.Selected()
	m.cursor = 0
	for i, r := range m.records {
		if r.ID == sel {
			m.cursor = i
			break
		}
	}
	m.detail = m.tracker.View()
}

func (m Model) selected() domain.CheckID {
	if m.cursor < len(m.records) {
		return m.records[m.cursor].ID
	}
	return domain.DraftID
}

// View renders the list and detail panes.
func (m Model) View() string {
	list := styles.PaneStyle.Width(listWidth).Render(m.renderList())
	detailWidth := max(20, m.width-listWidth-6)
	detail := styles.FocusedPaneStyle.Width(detailWidth).Render(m.renderDetail())
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, detail)

	footer := m.help.ShortHelpView(m.keys.ShortHelp())
	if m.showHelp {
		footer = m.help.FullHelpView(m.keys.FullHelp())
	}
	if m.toast.Visible() {
		footer = m.toast.View() + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m Model) renderList() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("History"))
	b.WriteString("\n")
	for i, r := range m.records {
		prefix := "  "
		if i == m.cursor {
			prefix = styles.SelectionIndicatorStyle.Render("> ")
		}
		// Pane padding, the cursor prefix and the widest badge take 16 cells.
		title := ansi.Truncate(r.DisplayTitle(), listWidth-16, "...")
		status := ""
		if !r.ID.IsDraft() {
			status = " " + styles.StatusBadge(r.Status)
		}
		b.WriteString(prefix + title + status + "\n")
	}
	return b.String()
}

func (m Model) renderDetail() string {
	v := m.detail
	var b strings.Builder
	switch v.Mode {
	case view.Compose:
		b.WriteString(styles.TitleStyle.Render("New check"))
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		return b.String()
	case view.Missing:
		return styles.MutedStyle.Render("This check is no longer available.")
	case view.Loading:
		b.WriteString(styles.TitleStyle.Render(v.Title))
		b.WriteString("\n\n" + m.spinner.View() + " Loading results...")
		return b.String()
	}

	b.WriteString(styles.TitleStyle.Render(v.Title))
	if v.Label != "" && v.Label != v.Title {
		b.WriteString(styles.SecondaryStyle.Render("  (" + v.Label + ")"))
	}
	b.WriteString("\n")
	b.WriteString(styles.SecondaryStyle.Render(v.Source.Display()))
	b.WriteString("\n\n")

	status := styles.StatusBadge(v.Status)
	if v.Status == domain.StatusInProgress {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status)
	if v.StatusMessage != "" {
		b.WriteString("  " + v.StatusMessage)
	}
	b.WriteString("\n")
	if v.ErrorMessage != "" {
		b.WriteString(styles.ErrorStyle.Render(v.ErrorMessage) + "\n")
	}
	if v.FetchError != "" {
		b.WriteString(styles.ErrorStyle.Render("Could not load results: "+v.FetchError) + "\n")
	}
	if m.mode == inputRename {
		b.WriteString("\nRename: " + m.input.View() + "\n")
	}

	fmt.Fprintf(&b, "\n%d/%d references  ✓ %d  ✗ %d  ! %d  ? %d\n\n",
		v.Stats.ProcessedRefs, v.Stats.TotalRefs,
		v.Paper.Verified, v.Paper.WithErrors, v.Paper.WarningsOnly, v.Paper.Unverified)

	for i, ref := range v.References {
		mark := lipgloss.NewStyle().Foreground(styles.RefStatusColor(ref.Status)).Render(string(ref.Status))
		title := ref.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "%3d. %s  %s\n", i+1, ansi.Truncate(title, 60, "..."), mark)
	}
	return b.String()
}
