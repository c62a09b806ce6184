package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/cellbuf"
)

// Canvas composes lipgloss-rendered blocks into a cell buffer so that
// overlays can be drawn on top of the screen before the frame is handed
// back to Bubble Tea.
type Canvas struct {
	screen *cellbuf.Screen
	writer *cellbuf.ScreenWriter
	width  int
	height int
}

// NewCanvas returns a blank width x height canvas.
func NewCanvas(width, height int) *Canvas {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	screen := cellbuf.NewScreen(io.Discard, width, height, &cellbuf.ScreenOptions{
		ShowCursor: false,
		AltScreen:  false,
	})
	return &Canvas{
		screen: screen,
		writer: cellbuf.NewScreenWriter(screen),
		width:  width,
		height: height,
	}
}

// DrawStringAt writes the provided block starting at x,y.
func (c *Canvas) DrawStringAt(x, y int, content string) {
	if content == "" || c == nil || c.writer == nil {
		return
	}
	c.drawBlockAt(x, y, splitLines(content))
}

// centerOverlay draws overlay centered on the canvas, keeping topMargin
// rows free above it.
func (c *Canvas) centerOverlay(overlay string, topMargin int) {
	lines := splitLines(overlay)
	if len(lines) == 0 || c == nil {
		return
	}
	if topMargin < 0 {
		topMargin = 0
	}

	overlayWidth := maxLineWidth(lines)
	if overlayWidth > c.width {
		overlayWidth = c.width
	}
	startY := topMargin
	if usable := c.height - topMargin; usable > len(lines) {
		startY = topMargin + (usable-len(lines))/2
	}
	startX := (c.width - overlayWidth) / 2
	c.drawBlockAt(startX, startY, lines)
}

// bottomRightOverlay anchors overlay to the bottom-right corner with the
// given padding.
func (c *Canvas) bottomRightOverlay(overlay string, padding int) {
	lines := splitLines(overlay)
	if len(lines) == 0 || c == nil {
		return
	}
	if padding < 0 {
		padding = 0
	}
	startY := c.height - len(lines) - padding
	startX := c.width - maxLineWidth(lines) - padding
	c.drawBlockAt(startX, startY, lines)
}

func (c *Canvas) drawBlockAt(x, y int, lines []string) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	for i, line := range lines {
		row := y + i
		if row >= c.height {
			break
		}
		if line == "" {
			continue
		}
		c.writer.PrintCropAt(x, row, line, "")
	}
}

// Render returns the composed frame as a newline-delimited string.
func (c *Canvas) Render() string {
	if c == nil || c.screen == nil {
		return ""
	}
	raw := cellbuf.Render(c.screen)
	_ = c.screen.Close()
	return strings.ReplaceAll(raw, "\r\n", "\n")
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

func maxLineWidth(lines []string) int {
	max := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > max {
			max = w
		}
	}
	return max
}
