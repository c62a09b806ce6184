package ui

import (
	"github.com/charmbracelet/bubbles/key"

	"updatekit/internal/renderer"
)

// KeyMap defines all keyboard shortcuts of the terminal surface.
// Each binding includes the actual keys and help text for display.
type KeyMap struct {
	// Screens
	Settings key.Binding
	Help     key.Binding
	Escape   key.Binding
	Quit     key.Binding

	// Update section actions
	Check    key.Binding
	Download key.Binding
	Install  key.Binding
	Restart  key.Binding

	// Preferences
	AutoDownload key.Binding
	Copy         key.Binding

	// Dialogs
	Confirm key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Settings: key.NewBinding(
			key.WithKeys("s", "tab"),
			key.WithHelp("s", "Settings"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "Close/back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),

		Check: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Check for updates"),
		),
		Download: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Download update"),
		),
		Install: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Update and restart"),
		),
		Restart: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Restart app"),
		),

		AutoDownload: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Toggle auto-download"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Copy details"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("⏎ (Enter)", "Dismiss"),
		),
	}
}

// actionKeys maps panel action ids to the binding that triggers them.
func actionKeys(keys KeyMap) map[string]key.Binding {
	return map[string]key.Binding{
		renderer.ActionDownloadUpdate:   keys.Download,
		renderer.ActionCheckForUpdates:  keys.Check,
		renderer.ActionUpdateAndRestart: keys.Install,
		renderer.ActionRestartApp:       keys.Restart,
	}
}
