package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/teamboard/internal/models"
)

var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorBorder    = lipgloss.Color("#3F4451")
	ColorHighlight = lipgloss.Color("#2C313C")

	ColorRed     = lipgloss.Color("#E06C75")
	ColorGreen   = lipgloss.Color("#98C379")
	ColorYellow  = lipgloss.Color("#E5C07B")
	ColorBlue    = lipgloss.Color("#61AFEF")
	ColorMagenta = lipgloss.Color("#C678DD")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true).
			PaddingLeft(1)

	LaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	// LaneDropStyle marks the lane a dragged card would land in.
	LaneDropStyle = LaneStyle.
			BorderForeground(ColorYellow)

	LaneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(ColorBorder).
			PaddingLeft(1).
			MarginBottom(1)

	CardSelectedStyle = CardStyle.
				BorderForeground(ColorBlue).
				Background(ColorHighlight)

	CardDraggingStyle = CardStyle.
				BorderForeground(ColorYellow).
				Foreground(ColorYellow)

	CardMetaStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	DialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMagenta).
			Padding(1, 2)

	DialogTitleStyle = lipgloss.NewStyle().
				Foreground(ColorMagenta).
				Bold(true).
				MarginBottom(1)

	FieldLabelStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			Width(12)

	FieldFocusedLabelStyle = FieldLabelStyle.
				Foreground(ColorBlue).
				Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			PaddingLeft(1).
			PaddingRight(1)
)

func laneColor(s models.Status) lipgloss.Color {
	switch s {
	case models.StatusOpen:
		return ColorBlue
	case models.StatusInProgress:
		return ColorYellow
	case models.StatusClosed:
		return ColorGreen
	}
	return ColorFgPrimary
}

func priorityColor(p models.Priority) lipgloss.Color {
	switch p {
	case models.PriorityHigh:
		return ColorRed
	case models.PriorityMedium:
		return ColorYellow
	case models.PriorityLow:
		return ColorFgMuted
	}
	return ColorFgPrimary
}
