// Package styles contains Lip Gloss style definitions.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#1F1F1F", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#696969"} // Hints, help text, footers

	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	BorderFocusedColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	StatusRunningColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#54A0FF"}

	SelectionIndicatorColor = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}

	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)
	TitleStyle              = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)
	SecondaryStyle          = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	MutedStyle              = lipgloss.NewStyle().Foreground(TextMutedColor)
	ErrorStyle              = lipgloss.NewStyle().Foreground(StatusErrorColor)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDefaultColor).
			Padding(0, 1)
	FocusedPaneStyle = PaneStyle.BorderForeground(BorderFocusedColor)
)

// StatusColor returns the color for a check status.
func StatusColor(s domain.Status) lipgloss.TerminalColor {
	switch s {
	case domain.StatusCompleted:
		return StatusSuccessColor
	case domain.StatusError:
		return StatusErrorColor
	case domain.StatusCancelled:
		return StatusWarningColor
	case domain.StatusInProgress:
		return StatusRunningColor
	default:
		return TextMutedColor
	}
}

// RefStatusColor returns the color for a reference status.
func RefStatusColor(s domain.RefStatus) lipgloss.TerminalColor {
	switch s {
	case domain.RefVerified:
		return StatusSuccessColor
	case domain.RefError:
		return StatusErrorColor
	case domain.RefWarning, domain.RefUnverified:
		return StatusWarningColor
	case domain.RefChecking:
		return StatusRunningColor
	default:
		return TextMutedColor
	}
}

// StatusBadge renders a colored status label.
func StatusBadge(s domain.Status) string {
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Render(string(s))
}
