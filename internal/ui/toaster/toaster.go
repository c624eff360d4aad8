// Package toaster provides a transient notification line for the TUI.
package toaster

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/refcheck/internal/ui/styles"
)

// DefaultDuration is how long a toast stays up unless replaced.
const DefaultDuration = 4 * time.Second

// Style determines the visual appearance of the toast.
type Style int

const (
	// StyleSuccess shows ✓ with a green border.
	StyleSuccess Style = iota
	// StyleError shows ✗ with a red border.
	StyleError
	// StyleInfo shows • with a blue border.
	StyleInfo
	// StyleWarn shows ! with a yellow border.
	StyleWarn
)

// Model holds the toaster state.
type Model struct {
	message string
	style   Style
	visible bool
	// seq identifies the current toast so a stale dismiss timer does not
	// hide a newer one.
	seq int
}

// New creates a new toaster model.
func New() Model {
	return Model{}
}

// Show displays a toast and returns the command that dismisses it after d.
func (m Model) Show(message string, style Style, d time.Duration) (Model, tea.Cmd) {
	m.message = message
	m.style = style
	m.visible = true
	m.seq++
	return m, ScheduleDismiss(m.seq, d)
}

// Hide dismisses the toast.
func (m Model) Hide() Model {
	m.visible = false
	m.message = ""
	return m
}

// Update hides the toast when its own dismiss timer fires.
func (m Model) Update(msg tea.Msg) Model {
	if d, ok := msg.(DismissMsg); ok && d.seq == m.seq {
		return m.Hide()
	}
	return m
}

// Visible returns whether the toast is currently showing.
func (m Model) Visible() bool {
	return m.visible
}

// Message returns the current text, empty when hidden.
func (m Model) Message() string {
	return m.message
}

// look pairs each Style with its icon and border color.
var look = map[Style]struct {
	icon  string
	color lipgloss.AdaptiveColor
}{
	StyleSuccess: {"✓", styles.StatusSuccessColor},
	StyleError:   {"✗", styles.StatusErrorColor},
	StyleInfo:    {"•", styles.StatusRunningColor},
	StyleWarn:    {"!", styles.StatusWarningColor},
}

// View renders the toast in a rounded box, or "" when hidden.
func (m Model) View() string {
	if !m.visible || m.message == "" {
		return ""
	}
	l, ok := look[m.style]
	if !ok {
		l = look[StyleSuccess]
	}
	return lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(l.color).
		Render(l.icon + " " + m.message)
}

// DismissMsg signals that the toast with the given sequence should close.
type DismissMsg struct {
	seq int
}

// ScheduleDismiss returns a command that dismisses toast seq after d.
func ScheduleDismiss(seq int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return DismissMsg{seq: seq}
	})
}
