package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"updatekit/internal/renderer"
)

// View implements tea.Model.
func (m *App) View() string {
	header := styleAppHeader.Render(m.appName + " " + m.displayVersion())
	if m.badge {
		header += " " + styleBadge.Render("● Update ready")
	}

	var body string
	if m.settingsOpen {
		body = m.renderSettings()
	} else {
		body = m.renderAbout()
	}

	frame := lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		body,
		"",
		renderFooter(m.footerHints(), m.contentWidth(), m.host),
	)
	if m.width <= 0 || m.height <= 0 {
		return frame
	}
	frame = truncateLines(frame, m.width)
	if m.toast == "" && !m.showHelp && m.dialog == nil {
		return frame
	}

	canvas := NewCanvas(m.width, m.height)
	canvas.DrawStringAt(0, 0, frame)
	if m.toast != "" {
		canvas.bottomRightOverlay(m.renderToast(), 1)
	}
	if m.showHelp {
		canvas.centerOverlay(renderHelpOverlay(m.keys), 1)
	}
	if m.dialog != nil {
		canvas.centerOverlay(m.renderDialog(), 1)
	}
	return canvas.Render()
}

func (m *App) displayVersion() string {
	v := strings.TrimSpace(m.version)
	if v == "" {
		return "dev"
	}
	if !strings.HasPrefix(v, "v") && v != "dev" {
		v = "v" + v
	}
	return v
}

func (m *App) renderAbout() string {
	rows := []string{
		styleField.Render("Version") + styleVal.Render(m.displayVersion()),
	}
	if m.host != "" {
		rows = append(rows, styleField.Render("Platform")+styleVal.Render(m.host))
	}
	auto := "off"
	if m.autoDownload {
		auto = "on"
	}
	rows = append(rows, styleField.Render("Auto-download")+styleVal.Render(auto))
	if m.badge {
		rows = append(rows, "", styleBadge.Render("An update is ready. Open settings to install it."))
	}
	return stylePane.Width(m.contentWidth()).Render(strings.Join(rows, "\n"))
}

func (m *App) renderSettings() string {
	width := m.contentWidth()
	inner := width - 4
	p := m.panel

	var lines []string
	title := toneStyle(p.Tone).Render(p.Title)
	if p.Highlight != "" {
		title += " " + styleHighlight.Render(p.Highlight)
	}
	if p.Indicator == renderer.IndicatorSpinner {
		title = m.spinner.View() + " " + title
	}
	lines = append(lines, title)

	if p.Indicator == renderer.IndicatorProgress {
		lines = append(lines, m.progress.ViewAs(p.Fraction))
	}
	if p.Error != nil && p.Error.Message != "" {
		lines = append(lines, styleErrorDetail.Render(wordwrap.String(p.Error.Message, inner)))
	}
	if p.Release != nil && strings.TrimSpace(p.Release.Notes) != "" {
		lines = append(lines, "", styleSectionHeader.Render("Release notes"), m.renderNotes(p.Release.Notes, inner))
	}
	if actions := m.renderActions(p); actions != "" {
		lines = append(lines, "", actions)
	}

	section := styleSectionHeader.Render("Updates")
	auto := "Download updates automatically: off"
	if m.autoDownload {
		auto = "Download updates automatically: on"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		section,
		stylePane.Width(width).Render(strings.Join(lines, "\n")),
		styleKeyDesc.Render(auto),
	)
}

func (m *App) renderNotes(notes string, width int) string {
	if m.notes == nil || m.notesWidth != width {
		m.notes = buildMarkdownRenderer(m.glamourStyle, width)
		m.notesWidth = width
	}
	return m.notes(notes)
}

func (m *App) renderActions(p renderer.Panel) string {
	bindings := actionKeys(m.keys)
	parts := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		label := styleButton.Render(a.Label)
		if a.Link {
			label = styleLink.Render(a.Label)
		}
		if b, ok := bindings[a.ID]; ok {
			label = styleKeyPill.Render(b.Help().Key) + " " + label
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "   ")
}

func (m *App) renderToast() string {
	text := wordwrap.String(m.toast, 40)
	if m.toastErr {
		return styleErrorToast.Render(text)
	}
	return styleSuccessToast.Render(text)
}

func (m *App) renderDialog() string {
	width := clamp(m.contentWidth()-10, 20, 60)
	body := []string{
		styleDialogTitle.Render(m.dialog.Title),
		"",
		wordwrap.String(m.dialog.Message, width),
	}
	if m.dialog.Detail != "" {
		body = append(body, "", styleErrorDetail.Render(wordwrap.String(m.dialog.Detail, width)))
	}
	body = append(body, "", styleHelpFooter.Render("Enter to dismiss · c to copy"))
	return styleDialog.Render(strings.Join(body, "\n"))
}
