package cli

import "github.com/charmbracelet/lipgloss"

// Colour palette for terminal output.
var (
	colourPrimary   = lipgloss.Color("#7C3AED")
	colourSecondary = lipgloss.Color("#06B6D4")
	colourMuted     = lipgloss.Color("#6C7086")
	colourSuccess   = lipgloss.Color("#A6E3A1")
	colourWarning   = lipgloss.Color("#F9E2AF")
	colourError     = lipgloss.Color("#F38BA8")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	subtitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colourSecondary)
	mutedStyle    = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle  = lipgloss.NewStyle().Foreground(colourSuccess)
	warningStyle  = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle    = lipgloss.NewStyle().Foreground(colourError)
)
