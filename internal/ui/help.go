package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// helpSection represents a group of keybindings for display.
type helpSection struct {
	title string
	rows  [][]string // Each row: [keys, description]
}

// getHelpSections returns the help content organized into sections.
// Text is derived from binding.Help() to keep a single source of truth.
func getHelpSections(keys KeyMap) []helpSection {
	return []helpSection{
		{
			title: "GENERAL",
			rows: [][]string{
				{keys.Settings.Help().Key, keys.Settings.Help().Desc},
				{keys.Help.Help().Key, keys.Help.Help().Desc},
				{keys.Escape.Help().Key, keys.Escape.Help().Desc},
				{keys.Quit.Help().Key, keys.Quit.Help().Desc},
			},
		},
		{
			title: "UPDATES",
			rows: [][]string{
				{keys.Check.Help().Key, keys.Check.Help().Desc},
				{keys.Download.Help().Key, keys.Download.Help().Desc},
				{keys.Install.Help().Key, keys.Install.Help().Desc},
				{keys.Restart.Help().Key, keys.Restart.Help().Desc},
				{keys.AutoDownload.Help().Key, keys.AutoDownload.Help().Desc},
				{keys.Copy.Help().Key, keys.Copy.Help().Desc},
			},
		},
	}
}

// renderHelpOverlay builds the help modal.
func renderHelpOverlay(keys KeyMap) string {
	sections := getHelpSections(keys)
	columns := lipgloss.JoinHorizontal(lipgloss.Top,
		renderHelpSectionTable(sections[0]),
		"    ",
		renderHelpSectionTable(sections[1]),
	)

	title := styleHelpTitle.Render("✦ UPDATEKIT HELP ✦")
	dividerWidth := lipgloss.Width(columns)
	if dividerWidth < 40 {
		dividerWidth = 40
	}
	divider := styleHelpDivider.Render(strings.Repeat("─", dividerWidth))
	footer := styleHelpFooter.Render("Press ? or Esc to close")

	return styleHelpOverlay.Render(lipgloss.JoinVertical(lipgloss.Center,
		title,
		divider,
		"",
		columns,
		"",
		footer,
	))
}

func renderHelpSectionTable(section helpSection) string {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return styleHelpKey.Width(8)
			}
			return styleHelpDesc
		}).
		Rows(section.rows...)

	header := styleHelpSectionHeader.Render(section.title)
	underline := styleHelpDivider.Render(strings.Repeat("─", len(section.title)))
	// Hidden borders add an empty top row.
	tableStr := strings.TrimPrefix(t.String(), "\n")

	return lipgloss.JoinVertical(lipgloss.Left, header, underline, tableStr)
}
