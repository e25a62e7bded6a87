package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorCyan    = lipgloss.AdaptiveColor{Dark: "#66D9E8", Light: "#0C8599"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title and artifact titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// SectionStyle labels a block inside an artifact panel.
var SectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorCyan)

// PanelStyle wraps a rendered artifact.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ErrorPanelStyle wraps error guidance.
var ErrorPanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorRed)

// QuestionIDStyle highlights a clarifying question identifier.
var QuestionIDStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// PromptStyle is used for input prompts.
var PromptStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorCyan)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// StatusStyle is used for progress messages.
var StatusStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Italic(true)

// TipStyle renders the suggestion under an error message.
var TipStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// ErrorStyle renders the headline of an error.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// ChecklistStyle returns a color-coded style for a checklist item status.
func ChecklistStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case "complete":
		return base.Foreground(ColorGreen)
	case "partial":
		return base.Foreground(ColorYellow)
	case "missing":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// ConfidenceStyle returns a color for a confidence score in [0, 1].
func ConfidenceStyle(score float64) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch {
	case score >= 0.8:
		return base.Foreground(ColorGreen)
	case score >= 0.5:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorOrange)
	}
}

// OutcomeStyle returns a color-coded style for a journal outcome.
func OutcomeStyle(outcome string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch outcome {
	case "ok":
		return base.Foreground(ColorGreen)
	case "canceled":
		return base.Foreground(ColorGray)
	case "server_busy", "timeout", "network_error":
		return base.Foreground(ColorOrange)
	default:
		return base.Foreground(ColorRed)
	}
}
