package report

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	textColor      = lipgloss.Color("#F9FAFB") // Light gray
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 2)

	metricLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Width(24)

	metricValueStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(textColor)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				Padding(0, 1)

	tableRowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	successStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)
)

// RenderMetric renders a label and a value on one line
func RenderMetric(label, value string) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		metricLabelStyle.Render(label),
		metricValueStyle.Render(value),
	)
}

// RenderProgressBar renders a static bar; fraction is clamped to [0, 1].
func RenderProgressBar(fraction float64, width int) string {
	bar := progress.New(
		progress.WithWidth(width),
		progress.WithSolidFill(string(secondaryColor)),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(mutedColor)
	return bar.ViewAs(fraction)
}

// confidenceStyle colours a confidence label.
func confidenceStyle(label string) lipgloss.Style {
	switch label {
	case "high":
		return successStyle
	case "medium":
		return warningStyle
	default:
		return errorStyle
	}
}
