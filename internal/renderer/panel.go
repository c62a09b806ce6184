package renderer

import (
	"strconv"

	"updatekit/internal/session"
	"updatekit/internal/status"
)

// Indicator is the activity widget shown under a panel title.
type Indicator string

const (
	IndicatorNone     Indicator = ""
	IndicatorSpinner  Indicator = "spinner"
	IndicatorProgress Indicator = "progress"
)

// Tone colours a panel title.
type Tone string

const (
	ToneMuted   Tone = "muted"
	ToneNormal  Tone = "normal"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

// Element ids of the update section and its buttons.
const (
	SectionID               = "check-for-update-section"
	ActionDownloadUpdate    = "download-update-btn"
	ActionCheckForUpdates   = "check-for-update-btn"
	ActionUpdateAndRestart  = "update-and-restart-btn"
	ActionRestartApp        = "restart-app-btn"
	ProgressBarID           = "update-download-progress-bar"
	ProgressTextID          = "update-download-progress-text"
	DefaultSettingsButtonID = "settings-btn"
)

// Action is a button on a panel.
type Action struct {
	ID      string
	Label   string
	Command status.Command
	// Link actions are drawn as hyperlinks rather than buttons.
	Link bool
}

// Panel is the view model of the update section for one status.
type Panel struct {
	Status    status.Status
	Title     string
	Highlight string
	Icon      string
	Tone      Tone
	Indicator Indicator
	Percent   int
	Fraction  float64
	Actions   []Action
	Release   *status.Release
	Error     *status.ErrorInfo
}

// Text returns the title followed by its highlighted part.
func (p Panel) Text() string {
	if p.Highlight == "" {
		return p.Title
	}
	return p.Title + " " + p.Highlight
}

// Action returns the action with the given id.
func (p Panel) Action(id string) (Action, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

func checkAction(label string) Action {
	return Action{ID: ActionCheckForUpdates, Label: label, Command: status.CommandCheckForUpdates, Link: true}
}

var (
	downloadAction = Action{ID: ActionDownloadUpdate, Label: "Download update", Command: status.CommandDownloadUpdate}
	installAction  = Action{ID: ActionUpdateAndRestart, Label: "Update and Restart", Command: status.CommandInstallUpdateAndRestart}
	restartAction  = Action{ID: ActionRestartApp, Label: "Restart App", Command: status.CommandRestartNormal}
)

// IdlePanel is shown before any status has been received.
func IdlePanel() Panel {
	return Panel{
		Title:   "Updates have not been checked yet",
		Tone:    ToneMuted,
		Actions: []Action{checkAction("Check for Updates")},
	}
}

// BuildPanel returns the panel for a persisted record. It reports false when
// the record's section is suppressed: the download section is not shown
// when updates are downloaded automatically.
func BuildPanel(rec session.Record, autoDownload bool) (Panel, bool) {
	p := Panel{Status: rec.Status}
	switch rec.Status {
	case status.CheckingForUpdates:
		p.Title = "Checking for updates..."
		p.Tone = ToneMuted
		p.Indicator = IndicatorSpinner

	case status.UpdateAvailable:
		if autoDownload {
			return Panel{}, false
		}
		var rel status.Release
		_ = rec.Decode(&rel)
		p.Title = "New update available:"
		p.Highlight = rel.DisplayVersion()
		p.Icon = "download"
		p.Tone = ToneNormal
		p.Release = &rel
		p.Actions = []Action{downloadAction, checkAction("Recheck")}

	case status.UpdateNotAvailable:
		p.Title = "You have the latest version installed"
		p.Icon = "checkmark"
		p.Tone = ToneSuccess
		p.Actions = []Action{checkAction("Check for Updates")}

	case status.DownloadProgress:
		var prog status.Progress
		_ = rec.Decode(&prog)
		p.Percent = prog.RoundedPercent()
		p.Fraction = prog.Fraction()
		p.Title = "Downloading... " + strconv.Itoa(p.Percent) + "%"
		p.Tone = ToneMuted
		p.Indicator = IndicatorProgress

	case status.UpdateDownloaded:
		var rel status.Release
		_ = rec.Decode(&rel)
		p.Title = "Update is ready to be applied"
		p.Tone = ToneNormal
		p.Release = &rel
		p.Actions = []Action{installAction}

	case status.InstallingUpdate:
		p.Title = "Installing update..."
		p.Tone = ToneMuted
		p.Indicator = IndicatorSpinner

	case status.UpdateApplied:
		p.Title = "Update has been applied successfully"
		p.Tone = ToneNormal
		p.Actions = []Action{restartAction}

	case status.Error:
		var info status.ErrorInfo
		var msg string
		if err := rec.Decode(&info); err == nil {
			p.Error = &info
		} else if err := rec.Decode(&msg); err == nil && msg != "" {
			p.Error = &status.ErrorInfo{Message: msg}
		}
		p.Title = "An error occurred while checking for updates"
		p.Icon = "error"
		p.Tone = ToneError
		p.Actions = []Action{checkAction("Retry")}

	default:
		return IdlePanel(), true
	}
	return p, true
}
