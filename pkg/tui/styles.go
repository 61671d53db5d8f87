package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// Color palette.
var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	coralPink   = lipgloss.Color("#FFCCCB")
	mintGreen   = lipgloss.Color("#A8E6CF")
	skyBlue     = lipgloss.Color("#A0C4FF")
	butterCream = lipgloss.Color("#FDFFB6")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	tipsStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	selectedStyle = lipgloss.NewStyle().
			Foreground(brightWhite).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(coralPink)

	assignmentStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			PaddingLeft(4)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(0, 1)
)

// statusStyle colors a status label.
func statusStyle(s types.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Width(10)
	switch s {
	case types.StatusRunning:
		return base.Foreground(skyBlue)
	case types.StatusPaused, types.StatusQueued:
		return base.Foreground(butterCream)
	case types.StatusCompleted:
		return base.Foreground(mintGreen)
	case types.StatusFailed:
		return base.Foreground(salmonPink)
	default:
		return base.Foreground(mutedGray)
	}
}
