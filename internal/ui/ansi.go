package ui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "…"

func stripANSI(s string) string {
	return ansi.Strip(s)
}

// truncateLine cuts a styled line to width cells, keeping escape sequences
// intact.
func truncateLine(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, ellipsis)
}

// truncateLines applies truncateLine to every line of a block.
func truncateLines(block string, width int) string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		lines[i] = truncateLine(line, width)
	}
	return strings.Join(lines, "\n")
}
