package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// footerHint defines a key hint for the footer bar.
// These are intentionally shorter than the KeyMap help text.
type footerHint struct {
	key  string
	desc string
}

// Global footer hints (always shown)
var globalFooterHints = []footerHint{
	{"?", "Help"},
	{"q", "Quit"},
}

var aboutFooterHints = []footerHint{
	{"s", "Settings"},
}

var settingsFooterHints = []footerHint{
	{"r", "Check"},
	{"a", "Auto-download"},
	{"Esc", "Back"},
}

// footerHints returns the hints for the current screen, context first.
func (m *App) footerHints() []footerHint {
	var hints []footerHint
	if m.settingsOpen {
		hints = append(hints, settingsFooterHints...)
	} else {
		hints = append(hints, aboutFooterHints...)
	}
	return append(hints, globalFooterHints...)
}

// renderFooter renders the footer bar with pill-style key hints and the
// host label right-aligned.
func renderFooter(hints []footerHint, width int, right string) string {
	rightRendered := ""
	if right != "" {
		rightRendered = styleKeyDesc.Render(right)
	}
	rightWidth := lipgloss.Width(rightRendered)
	hints = trimHintsToFit(hints, width-rightWidth-2)

	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, keyPill(h.key, h.desc))
	}
	left := strings.Join(parts, "  ")
	if rightRendered == "" {
		return left
	}

	spacing := width - lipgloss.Width(left) - rightWidth
	if spacing < 2 {
		return left
	}
	return left + strings.Repeat(" ", spacing) + rightRendered
}

// keyPill renders a single key hint as a pill with description.
func keyPill(key, desc string) string {
	return styleKeyPill.Render(key) + " " + styleKeyDesc.Render(desc)
}

// trimHintsToFit progressively removes hints to fit available width.
// Removes context-specific hints first, then global hints from end.
func trimHintsToFit(hints []footerHint, availableWidth int) []footerHint {
	globalCount := len(globalFooterHints)

	for len(hints) > 0 {
		if renderHintsWidth(hints) <= availableWidth {
			break
		}
		if len(hints) > globalCount {
			hints = hints[1:]
		} else {
			hints = hints[:len(hints)-1]
		}
	}
	return hints
}

// renderHintsWidth calculates the visual width of rendered hints.
func renderHintsWidth(hints []footerHint) int {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, keyPill(h.key, h.desc))
	}
	return lipgloss.Width(strings.Join(parts, "  "))
}
