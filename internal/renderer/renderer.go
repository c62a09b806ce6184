// Package renderer is the display-side half of the update plumbing. It
// receives statuses from the update service, keeps the latest one in the
// session store, draws it on the settings surface when that is visible and
// sends the user's commands back, refusing the ones the current status does
// not allow.
package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"updatekit/internal/ipc"
	"updatekit/internal/session"
	"updatekit/internal/status"
)

// Diagnostics logged when a guarded command is refused.
const (
	SkippedDownloadMessage = "Skipped Download Update: No latest release detected..."
	SkippedInstallMessage  = "Skipped quit and update: No updates downloaded..."
	NoUpdatesMessage       = "No updates available at the moment!"
)

// Surface is where panels are drawn.
type Surface interface {
	// Visible reports whether the settings screen is currently shown.
	Visible() bool
	Render(p Panel)
	// SetBadge marks the settings entry point as having an update ready.
	SetBadge(on bool)
}

// Sender delivers commands to the update service.
type Sender interface {
	Send(ctx context.Context, msg ipc.Message) error
}

// Hooks are optional callbacks fired after the matching status is handled.
type Hooks struct {
	OnUpdateAvailable  func(rel status.Release)
	OnUpdateDownloaded func(rel status.Release)
	OnUpdateApplied    func()
}

// Renderer handles inbound statuses and outbound commands.
type Renderer struct {
	store   session.Store
	surface Surface
	sender  Sender
	hooks   Hooks
	log     zerolog.Logger

	mu           sync.Mutex
	autoDownload bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithHooks sets the status callbacks.
func WithHooks(h Hooks) Option {
	return func(r *Renderer) {
		r.hooks = h
	}
}

// WithLogger sets the renderer logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Renderer) {
		r.log = l
	}
}

// WithAutoDownload sets whether updates are downloaded without asking.
func WithAutoDownload(enabled bool) Option {
	return func(r *Renderer) {
		r.autoDownload = enabled
	}
}

// New returns a Renderer. A nil store defaults to a MemoryStore.
func New(store session.Store, surface Surface, sender Sender, opts ...Option) *Renderer {
	if store == nil {
		store = session.NewMemoryStore()
	}
	r := &Renderer{
		store:   store,
		surface: surface,
		sender:  sender,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetAutoDownload changes whether the download section is suppressed.
func (r *Renderer) SetAutoDownload(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoDownload = enabled
}

// AutoDownload reports whether the download section is suppressed.
func (r *Renderer) AutoDownload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoDownload
}

// Register installs a handler for every status on router.
func (r *Renderer) Register(router *ipc.Router) {
	for _, s := range status.All() {
		st := s
		router.HandleStatus(st, func(ctx context.Context, msg ipc.Message) error {
			return r.Handle(ctx, st, msg.Payload)
		})
	}
}

// Handle processes one status: it is persisted first, then drawn if the
// settings screen is visible, then the matching hook runs.
func (r *Renderer) Handle(ctx context.Context, s status.Status, payload json.RawMessage) error {
	if !s.Valid() {
		return fmt.Errorf("unknown status %q", s)
	}
	rec := session.Record{Status: s, Payload: payload}
	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist %s: %w", s, err)
	}
	r.log.Debug().Str("status", s.String()).Msg("status received")

	switch s {
	case status.UpdateNotAvailable:
		r.log.Info().Msg(NoUpdatesMessage)
	case status.UpdateDownloaded:
		r.surface.SetBadge(true)
	}

	r.draw(rec)

	switch s {
	case status.UpdateAvailable:
		if r.hooks.OnUpdateAvailable != nil {
			r.hooks.OnUpdateAvailable(decodeRelease(rec))
		}
	case status.UpdateDownloaded:
		if r.hooks.OnUpdateDownloaded != nil {
			r.hooks.OnUpdateDownloaded(decodeRelease(rec))
		}
	case status.UpdateApplied:
		if r.hooks.OnUpdateApplied != nil {
			r.hooks.OnUpdateApplied()
		}
	}
	return nil
}

func decodeRelease(rec session.Record) status.Release {
	var rel status.Release
	_ = rec.Decode(&rel)
	return rel
}

func (r *Renderer) draw(rec session.Record) {
	if !r.surface.Visible() {
		return
	}
	if p, ok := BuildPanel(rec, r.AutoDownload()); ok {
		r.surface.Render(p)
	}
}

// Redraw draws the persisted status, or the idle panel when nothing has
// been received yet. Surfaces call it when the settings screen opens.
func (r *Renderer) Redraw(ctx context.Context) error {
	rec, ok, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted status: %w", err)
	}
	if !ok {
		if r.surface.Visible() {
			r.surface.Render(IdlePanel())
		}
		return nil
	}
	r.draw(rec)
	return nil
}

// Current returns the persisted status.
func (r *Renderer) Current(ctx context.Context) (session.Record, bool, error) {
	return r.store.Load(ctx)
}

func (r *Renderer) persisted(ctx context.Context) status.Status {
	rec, ok, err := r.store.Load(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("load persisted status")
		return ""
	}
	if !ok {
		return ""
	}
	return rec.Status
}

func (r *Renderer) send(ctx context.Context, c status.Command) error {
	if err := r.sender.Send(ctx, ipc.CommandMessage(c)); err != nil {
		return fmt.Errorf("send %s: %w", c, err)
	}
	r.log.Debug().Str("command", c.String()).Msg("command sent")
	return nil
}

// RequestCheckForUpdates asks the service to check the feed.
func (r *Renderer) RequestCheckForUpdates(ctx context.Context) error {
	return r.send(ctx, status.CommandCheckForUpdates)
}

// RequestDownloadUpdate asks the service to download the available update.
// It reports false without sending when no update is available.
func (r *Renderer) RequestDownloadUpdate(ctx context.Context) (bool, error) {
	if r.persisted(ctx) != status.UpdateAvailable {
		r.log.Info().Msg(SkippedDownloadMessage)
		return false, nil
	}
	return true, r.send(ctx, status.CommandDownloadUpdate)
}

// RequestUpdateAndRestart asks the service to install the downloaded update
// and restart. It reports false without sending when nothing is downloaded.
func (r *Renderer) RequestUpdateAndRestart(ctx context.Context) (bool, error) {
	if r.persisted(ctx) != status.UpdateDownloaded {
		r.log.Info().Msg(SkippedInstallMessage)
		return false, nil
	}
	return true, r.send(ctx, status.CommandInstallUpdateAndRestart)
}

// RequestRestart asks the application to restart normally.
func (r *Renderer) RequestRestart(ctx context.Context) error {
	return r.send(ctx, status.CommandRestartNormal)
}

// Trigger runs the request matching a panel action's command.
func (r *Renderer) Trigger(ctx context.Context, c status.Command) error {
	switch c {
	case status.CommandCheckForUpdates:
		return r.RequestCheckForUpdates(ctx)
	case status.CommandDownloadUpdate:
		_, err := r.RequestDownloadUpdate(ctx)
		return err
	case status.CommandInstallUpdateAndRestart:
		_, err := r.RequestUpdateAndRestart(ctx)
		return err
	case status.CommandRestartNormal:
		return r.RequestRestart(ctx)
	default:
		return fmt.Errorf("unknown command %q", c)
	}
}
