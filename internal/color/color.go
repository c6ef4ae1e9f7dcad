package color

import (
	"github.com/charmbracelet/lipgloss"

	"relctl/internal/release"
)

// Palette
var (
	Success = lipgloss.AdaptiveColor{Light: "#1E7F34", Dark: "#3FB950"}
	Warning = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	Error   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	Info    = lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"}
	Muted   = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	InfoStyle    = lipgloss.NewStyle().Foreground(Info)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
)

// Initialize sets the background the adaptive colors resolve against.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}

// Outcome renders a release outcome in its semantic color.
func Outcome(o release.Outcome) string {
	switch o {
	case release.OutcomeSucceeded:
		return SuccessStyle.Render("✓ " + string(o))
	case release.OutcomeRolledBack:
		return WarningStyle.Render("↺ " + string(o))
	case release.OutcomeFailed:
		return ErrorStyle.Render("✗ " + string(o))
	}
	return MutedStyle.Render("… in flight")
}

// State renders a state machine step.
func State(s release.State) string {
	switch s {
	case release.StateSucceeded:
		return SuccessStyle.Render(string(s))
	case release.StateRollingBack, release.StateRolledBack:
		return WarningStyle.Render(string(s))
	case release.StateFailed:
		return ErrorStyle.Render(string(s))
	}
	return InfoStyle.Render(string(s))
}

// Present renders a prerequisite presence check.
func Present(ok bool, text string) string {
	if ok {
		return SuccessStyle.Render("✓ " + text)
	}
	return ErrorStyle.Render("✗ " + text)
}
