// Package ui is the terminal surface of the update plumbing: an about screen
// and a settings screen hosting the update section drawn by the renderer.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"updatekit/internal/renderer"
	"updatekit/internal/status"
)

const (
	toastDuration   = 3 * time.Second
	maxContentWidth = 80
)

// Controller is the renderer half the surface drives.
type Controller interface {
	Trigger(ctx context.Context, c status.Command) error
	Redraw(ctx context.Context) error
	SetAutoDownload(enabled bool)
}

// Config configures the UI application.
type Config struct {
	Context    context.Context
	Controller Controller
	Surface    *Surface
	AppName    string
	Version    string
	// Host describes the machine on the about screen.
	Host         string
	GlamourStyle string
	AutoDownload bool
	// SaveAutoDownload persists the auto-download preference.
	SaveAutoDownload func(enabled bool) error
	// Installing reports whether an update is being installed. Quitting
	// is refused until the install finishes and stops the program itself.
	Installing func() bool
}

// App implements the Bubble Tea model of the terminal surface.
type App struct {
	ctx              context.Context
	controller       Controller
	surface          *Surface
	keys             KeyMap
	appName          string
	version          string
	host             string
	glamourStyle     string
	saveAutoDownload func(bool) error
	installing       func() bool

	spinner  spinner.Model
	progress progress.Model

	panel        renderer.Panel
	hasPanel     bool
	badge        bool
	autoDownload bool

	settingsOpen bool
	showHelp     bool
	dialog       *DialogMsg

	toast    string
	toastErr bool
	toastSeq int

	width      int
	height     int
	notes      func(string) string
	notesWidth int
}

type commandResultMsg struct {
	note string
	err  error
}

type toastExpiredMsg struct {
	seq int
}

// NewApp returns the model.
func NewApp(cfg Config) (*App, error) {
	if cfg.Controller == nil {
		return nil, errors.New("ui: controller is required")
	}
	if cfg.Surface == nil {
		return nil, errors.New("ui: surface is required")
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "updatekit"
	}

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = styleSpinner

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &App{
		ctx:              ctx,
		controller:       cfg.Controller,
		surface:          cfg.Surface,
		keys:             DefaultKeyMap(),
		appName:          appName,
		version:          cfg.Version,
		host:             cfg.Host,
		glamourStyle:     cfg.GlamourStyle,
		saveAutoDownload: cfg.SaveAutoDownload,
		installing:       cfg.Installing,
		spinner:          s,
		progress:         p,
		panel:            renderer.IdlePanel(),
		badge:            cfg.Surface.Badge(),
		autoDownload:     cfg.AutoDownload,
	}, nil
}

// Init implements tea.Model.
func (m *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = clamp(m.contentWidth()-6, 10, 60)
		return m, nil

	case PanelMsg:
		wasSpinning := m.spinning()
		m.panel = msg.Panel
		m.hasPanel = true
		if m.spinning() && !wasSpinning {
			return m, m.spinner.Tick
		}
		return m, nil

	case BadgeMsg:
		m.badge = msg.On
		return m, nil

	case *DialogMsg:
		m.dialog.dismiss()
		m.dialog = msg
		return m, nil

	case spinner.TickMsg:
		if !m.spinning() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case commandResultMsg:
		if msg.err != nil {
			return m, m.showToast(msg.err.Error(), true)
		}
		if msg.note != "" {
			return m, m.showToast(msg.note, false)
		}
		return m, nil

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.dialog != nil {
		switch {
		case key.Matches(msg, m.keys.Confirm, m.keys.Escape):
			m.dialog.dismiss()
			m.dialog = nil
		case key.Matches(msg, m.keys.Copy):
			return m.copyDetails()
		}
		return nil
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Escape) {
			m.showHelp = false
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.installing != nil && m.installing() {
			return m.showToast("Installing update. The app closes when it is done.", false)
		}
		m.surface.SetVisible(false)
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return nil
	case key.Matches(msg, m.keys.Settings):
		return m.setSettingsOpen(!m.settingsOpen)
	case key.Matches(msg, m.keys.Escape):
		if m.settingsOpen {
			return m.setSettingsOpen(false)
		}
		return nil
	case key.Matches(msg, m.keys.AutoDownload):
		return m.toggleAutoDownload()
	case key.Matches(msg, m.keys.Copy):
		return m.copyDetails()
	}

	if !m.settingsOpen {
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Check):
		return m.trigger(status.CommandCheckForUpdates)
	case key.Matches(msg, m.keys.Download):
		return m.trigger(status.CommandDownloadUpdate)
	case key.Matches(msg, m.keys.Install):
		return m.trigger(status.CommandInstallUpdateAndRestart)
	case key.Matches(msg, m.keys.Restart):
		return m.trigger(status.CommandRestartNormal)
	}
	return nil
}

// setSettingsOpen shows or hides the settings screen. Opening it redraws
// the persisted status.
func (m *App) setSettingsOpen(open bool) tea.Cmd {
	m.settingsOpen = open
	m.surface.SetVisible(open)
	if !open {
		return nil
	}
	return m.redraw()
}

func (m *App) redraw() tea.Cmd {
	ctrl, ctx := m.controller, m.ctx
	return func() tea.Msg {
		return commandResultMsg{err: ctrl.Redraw(ctx)}
	}
}

func (m *App) trigger(c status.Command) tea.Cmd {
	ctrl, ctx := m.controller, m.ctx
	return func() tea.Msg {
		return commandResultMsg{err: ctrl.Trigger(ctx, c)}
	}
}

func (m *App) toggleAutoDownload() tea.Cmd {
	m.autoDownload = !m.autoDownload
	enabled := m.autoDownload
	m.controller.SetAutoDownload(enabled)

	note := "Auto-download disabled"
	if enabled {
		note = "Auto-download enabled"
	}
	save := m.saveAutoDownload
	cmds := []tea.Cmd{func() tea.Msg {
		if save != nil {
			if err := save(enabled); err != nil {
				return commandResultMsg{err: fmt.Errorf("save preference: %w", err)}
			}
		}
		return commandResultMsg{note: note}
	}}
	if m.settingsOpen {
		cmds = append(cmds, m.redraw())
	}
	return tea.Batch(cmds...)
}

// copyText returns what the copy key puts on the clipboard: the open
// dialog, the error shown in the update section or the release found.
func (m *App) copyText() string {
	switch {
	case m.dialog != nil:
		return strings.TrimSpace(m.dialog.Message + "\n" + m.dialog.Detail)
	case m.panel.Error != nil:
		if m.panel.Error.Code != "" {
			return m.panel.Error.Code + ": " + m.panel.Error.Message
		}
		return m.panel.Error.Message
	case m.panel.Release != nil && m.panel.Release.Version != "":
		text := m.panel.Release.DisplayVersion()
		if m.panel.Release.URL != "" {
			text += " " + m.panel.Release.URL
		}
		return text
	}
	return ""
}

func (m *App) copyDetails() tea.Cmd {
	text := m.copyText()
	if text == "" {
		return m.showToast("Nothing to copy", false)
	}
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return commandResultMsg{err: fmt.Errorf("copy to clipboard: %w", err)}
		}
		return commandResultMsg{note: "Copied to clipboard."}
	}
}

func (m *App) showToast(text string, isErr bool) tea.Cmd {
	m.toastSeq++
	seq := m.toastSeq
	m.toast = text
	m.toastErr = isErr
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}

func (m *App) spinning() bool {
	return m.panel.Indicator == renderer.IndicatorSpinner
}

func (m *App) contentWidth() int {
	if m.width <= 0 {
		return maxContentWidth
	}
	return clamp(m.width-2, 20, maxContentWidth)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
