package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/josephgoksu/plantrack/models"
)

var (
	// Colors
	ColorPrimary   = lipgloss.Color("205") // Pink
	ColorSecondary = lipgloss.Color("241") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("160") // Red
	ColorWarning   = lipgloss.Color("214") // Orange/Yellow
	ColorText      = lipgloss.Color("252") // White/Gray
	ColorCyan      = lipgloss.Color("87")  // Cyan for in-progress

	// Base Styles
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Padding(0, 1)

	StyleSectionTitle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				Underline(true)

	// Semantic Prefix Styles
	StylePrefixDone  = lipgloss.NewStyle().Foreground(ColorSuccess)
	StylePrefixWarn  = lipgloss.NewStyle().Foreground(ColorWarning)
	StylePrefixError = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
)

var stateColors = map[models.StepState]lipgloss.Color{
	models.StatePending:    ColorSecondary,
	models.StateInProgress: ColorCyan,
	models.StateDone:       ColorSuccess,
	models.StateBlocked:    ColorError,
	models.StateSkipped:    ColorWarning,
}

var stateIcons = map[models.StepState]string{
	models.StatePending:    "○",
	models.StateInProgress: "◐",
	models.StateDone:       "●",
	models.StateBlocked:    "✖",
	models.StateSkipped:    "⊘",
}

// StateStyle returns the style used for a step state.
func StateStyle(state models.StepState) lipgloss.Style {
	if c, ok := stateColors[state]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return StyleText
}

// StateIcon returns the styled glyph for a state.
func StateIcon(state models.StepState) string {
	icon, ok := stateIcons[state]
	if !ok {
		icon = "?"
	}
	return Icon(icon, StateStyle(state))
}

// Icon returns a styled icon string
func Icon(icon string, style lipgloss.Style) string {
	return style.Render(icon)
}
