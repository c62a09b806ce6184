// Package status defines the vocabulary shared by the update service and the
// surfaces that display its progress: the lifecycle states, the payloads
// attached to them and the commands a surface may send back.
package status

import "fmt"

// Status is one step of the update lifecycle. Exactly one status is current
// at any time; only the update service emits transitions.
type Status string

const (
	CheckingForUpdates Status = "CheckingForUpdates"
	UpdateAvailable    Status = "UpdateAvailable"
	UpdateNotAvailable Status = "UpdateNotAvailable"
	DownloadProgress   Status = "DownloadProgress"
	UpdateDownloaded   Status = "UpdateDownloaded"
	// InstallingUpdate is only emitted by the macOS manual install path.
	InstallingUpdate Status = "InstallingUpdate"
	// UpdateApplied is only emitted by the macOS manual install path.
	UpdateApplied Status = "UpdateApplied"
	Error         Status = "Error"
)

var all = []Status{
	CheckingForUpdates,
	UpdateAvailable,
	UpdateNotAvailable,
	DownloadProgress,
	UpdateDownloaded,
	InstallingUpdate,
	UpdateApplied,
	Error,
}

// All returns every status in lifecycle order.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range all {
		if s == known {
			return true
		}
	}
	return false
}

// PlatformSpecific reports whether s is only produced on macOS.
func (s Status) PlatformSpecific() bool {
	return s == InstallingUpdate || s == UpdateApplied
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Parse converts a wire name into a Status.
func Parse(name string) (Status, error) {
	s := Status(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown updater status %q", name)
	}
	return s, nil
}

// Command is a request sent from a surface to the update service. Commands
// carry no parameters; the service looks up any state it needs itself.
type Command string

const (
	CommandCheckForUpdates         Command = "update:checkForUpdates"
	CommandDownloadUpdate          Command = "update:downloadUpdate"
	CommandInstallUpdateAndRestart Command = "update:installUpdateAndRestart"
	// CommandRestartNormal asks the application to restart without
	// installing anything. It is handled by the application lifecycle, not
	// by the update service.
	CommandRestartNormal Command = "restart-normal"
)

var commands = []Command{
	CommandCheckForUpdates,
	CommandDownloadUpdate,
	CommandInstallUpdateAndRestart,
	CommandRestartNormal,
}

// Commands returns every known command.
func Commands() []Command {
	out := make([]Command, len(commands))
	copy(out, commands)
	return out
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	for _, known := range commands {
		if c == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return string(c)
}

// ParseCommand converts a wire name into a Command.
func ParseCommand(name string) (Command, error) {
	c := Command(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown updater command %q", name)
	}
	return c, nil
}
