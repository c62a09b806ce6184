package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"updatekit/internal/renderer"
)

var (
	cPurple     = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#7D56F4"}
	cPink       = lipgloss.AdaptiveColor{Light: "#C2185B", Dark: "#FF79C6"}
	cCyan       = lipgloss.AdaptiveColor{Light: "#0277BD", Dark: "#8BE9FD"}
	cGreen      = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#50FA7B"}
	cRed        = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF5555"}
	cGold       = lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#F1FA8C"}
	cText       = lipgloss.AdaptiveColor{Light: "#212121", Dark: "#F8F8F2"}
	cTextMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#6272A4"}
	cBorder     = lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"}
	cBackground = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}

	styleAppHeader = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(cPurple).
			Bold(true).
			Padding(0, 1)

	styleBadge = lipgloss.NewStyle().
			Foreground(cGreen).
			Bold(true)

	styleField = lipgloss.NewStyle().
			Foreground(cCyan).
			Bold(true).
			Width(14)

	styleVal = lipgloss.NewStyle().Foreground(cText)

	styleSectionHeader = lipgloss.NewStyle().
				Foreground(cGold).
				Bold(true)

	stylePane = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cBorder).
			Padding(0, 1)

	styleHighlight = lipgloss.NewStyle().
			Foreground(cPink).
			Bold(true)

	styleButton = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(cPurple).
			Bold(true).
			Padding(0, 1)

	styleLink = lipgloss.NewStyle().
			Foreground(cCyan).
			Underline(true)

	styleSpinner = lipgloss.NewStyle().Foreground(cPink)

	styleErrorDetail = lipgloss.NewStyle().
				Foreground(cRed)

	styleErrorToast = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cRed).
			Foreground(cText).
			Padding(0, 1)

	styleSuccessToast = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(cGreen).
				Foreground(cText).
				Padding(0, 1)

	styleDialog = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(cRed).
			Background(cBackground).
			Padding(1, 2)

	styleDialogTitle = lipgloss.NewStyle().
				Foreground(cRed).
				Bold(true)

	// Help overlay styles
	styleHelpOverlay = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(cPurple).
				Background(cBackground).
				Padding(1, 2)

	styleHelpTitle = lipgloss.NewStyle().
			Foreground(cGold).
			Bold(true)

	styleHelpDivider = lipgloss.NewStyle().
				Foreground(cPurple)

	styleHelpSectionHeader = lipgloss.NewStyle().
				Foreground(cCyan).
				Bold(true)

	styleHelpKey = lipgloss.NewStyle().
			Foreground(cCyan).
			Bold(true)

	styleHelpDesc = lipgloss.NewStyle().
			Foreground(cText)

	styleHelpFooter = lipgloss.NewStyle().
			Foreground(cTextMuted).
			Italic(true)

	// Footer bar styles
	styleKeyPill = lipgloss.NewStyle().
			Background(cPurple).
			Foreground(lipgloss.Color("255")).
			Bold(true).
			Padding(0, 1)

	styleKeyDesc = lipgloss.NewStyle().
			Foreground(cTextMuted)
)

// toneStyle returns the title style for a panel tone.
func toneStyle(t renderer.Tone) lipgloss.Style {
	switch t {
	case renderer.ToneSuccess:
		return lipgloss.NewStyle().Foreground(cGreen).Bold(true)
	case renderer.ToneError:
		return lipgloss.NewStyle().Foreground(cRed).Bold(true)
	case renderer.ToneMuted:
		return lipgloss.NewStyle().Foreground(cTextMuted)
	default:
		return lipgloss.NewStyle().Foreground(cText).Bold(true)
	}
}

func buildMarkdownRenderer(format string, width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}

	style := strings.ToLower(strings.TrimSpace(format))
	if style == "" || style == "rich" {
		style = "dark"
	}
	if style == "plain" {
		return fallback
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := md.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}
