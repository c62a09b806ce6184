// Package backend defines the auto-update capability the update service
// wraps, and provides a GitHub-releases implementation of it.
//
// A backend detects releases on a feed, downloads them into a local cache
// and applies them. It reports every step as an Event to its subscribers,
// in the order the steps happen.
package backend

import (
	"context"
	"strings"
	"sync"

	appErrors "updatekit/internal/errors"
	"updatekit/internal/status"
)

// EventKind names a backend lifecycle event.
type EventKind string

const (
	EventCheckingForUpdate  EventKind = "checking-for-update"
	EventUpdateAvailable    EventKind = "update-available"
	EventUpdateNotAvailable EventKind = "update-not-available"
	EventDownloadProgress   EventKind = "download-progress"
	EventUpdateDownloaded   EventKind = "update-downloaded"
	EventError              EventKind = "error"
)

// Status maps the event onto the status relayed to the renderer.
func (k EventKind) Status() status.Status {
	switch k {
	case EventCheckingForUpdate:
		return status.CheckingForUpdates
	case EventUpdateAvailable:
		return status.UpdateAvailable
	case EventUpdateNotAvailable:
		return status.UpdateNotAvailable
	case EventDownloadProgress:
		return status.DownloadProgress
	case EventUpdateDownloaded:
		return status.UpdateDownloaded
	default:
		return status.Error
	}
}

// Event is emitted by a backend. Release is set for availability and
// download events, Progress for download progress and Err for errors.
type Event struct {
	Kind     EventKind
	Release  *status.Release
	Progress *status.Progress
	Err      error
}

// Payload returns the value relayed alongside the event's status.
func (e Event) Payload() any {
	switch {
	case e.Kind == EventError:
		info := status.ErrorInfo{Code: string(appErrors.CodeOf(e.Err)), Message: "unknown error"}
		if e.Err != nil {
			info.Message = appErrors.DetailOf(e.Err)
		}
		return info
	case e.Progress != nil:
		return *e.Progress
	case e.Release != nil:
		return *e.Release
	default:
		return nil
	}
}

// Feed identifies the release feed to poll.
type Feed struct {
	Owner      string
	Repo       string
	Prerelease bool
}

// Validate reports whether the feed names a repository.
func (f Feed) Validate() error {
	if strings.TrimSpace(f.Owner) == "" || strings.TrimSpace(f.Repo) == "" {
		return appErrors.New(appErrors.CodeConfigurationError, "feed owner and repo are required", nil)
	}
	return nil
}

func (f Feed) String() string {
	return f.Owner + "/" + f.Repo
}

// Backend is the auto-update capability wrapped by the update service.
type Backend interface {
	// SetFeed selects the release feed.
	SetFeed(feed Feed) error
	// SetAutoDownload controls whether an available update is downloaded
	// as soon as it is detected.
	SetAutoDownload(enabled bool)
	// CheckForUpdates polls the feed. A call made while a check is in
	// flight returns immediately without starting another.
	CheckForUpdates(ctx context.Context) error
	// DownloadUpdate downloads the release found by the last check.
	DownloadUpdate(ctx context.Context) error
	// QuitAndInstall applies the downloaded release in place. Restarting
	// the process is the caller's job.
	QuitAndInstall(ctx context.Context) error
	// Subscribe registers fn for every event and returns a function that
	// removes it.
	Subscribe(fn func(Event)) func()
	// Downloaded returns the release waiting to be installed, if any.
	Downloaded() (status.Release, bool)
}

// Emitter fans events out to subscribers in subscription order.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

// Subscribe registers fn and returns its removal function.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers ev to every subscriber synchronously.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
