// Package service runs the privileged half of the update plumbing. It drives
// the auto-update backend, relays every backend event to the renderer as a
// status message and executes the commands the renderer sends back.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"updatekit/internal/backend"
	appErrors "updatekit/internal/errors"
	"updatekit/internal/install"
	"updatekit/internal/ipc"
	"updatekit/internal/status"
)

// Lifecycle is the application lifecycle the service restarts or stops.
type Lifecycle interface {
	// SetQuitting marks the application as shutting down so that windows
	// close instead of hiding.
	SetQuitting()
	Relaunch() error
	Quit()
}

// Dialog shows blocking error dialogs.
type Dialog interface {
	Error(title, message, detail string)
}

// Installer runs the manual macOS install.
type Installer interface {
	Install(ctx context.Context, plan install.Plan) error
}

// Sender delivers status messages to the renderer.
type Sender interface {
	Send(ctx context.Context, msg ipc.Message) error
}

// Service wraps a Backend.
type Service struct {
	backend   backend.Backend
	sender    Sender
	installer Installer
	lifecycle Lifecycle
	dialog    Dialog
	log       zerolog.Logger

	feed          backend.Feed
	autoDownload  bool
	checkInterval time.Duration
	goos          string
	executable    string
	bundleName    string

	mu          sync.Mutex
	ctx         context.Context
	current     status.Status
	downloaded  *status.Release
	onReady     func(status.Release)
	unsubscribe func()
	initialized bool

	wg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithFeed sets the release feed.
func WithFeed(feed backend.Feed) Option {
	return func(s *Service) {
		s.feed = feed
	}
}

// WithAutoDownload makes an available update download as soon as it is found.
func WithAutoDownload(enabled bool) Option {
	return func(s *Service) {
		s.autoDownload = enabled
	}
}

// WithCheckInterval re-checks the feed periodically. Zero checks only at
// startup.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithInstaller sets the manual installer used on macOS.
func WithInstaller(i Installer) Option {
	return func(s *Service) {
		if i != nil {
			s.installer = i
		}
	}
}

// WithLifecycle sets the application lifecycle.
func WithLifecycle(l Lifecycle) Option {
	return func(s *Service) {
		if l != nil {
			s.lifecycle = l
		}
	}
}

// WithDialog sets the error dialog.
func WithDialog(d Dialog) Option {
	return func(s *Service) {
		if d != nil {
			s.dialog = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithGOOS overrides the operating system used to pick the install path.
func WithGOOS(goos string) Option {
	return func(s *Service) {
		if goos != "" {
			s.goos = goos
		}
	}
}

// WithExecutable sets the path of the running executable. It locates the
// application bundle on macOS.
func WithExecutable(path string) Option {
	return func(s *Service) {
		s.executable = strings.TrimSpace(path)
	}
}

// WithBundleName sets the name of the application bundle inside release
// archives.
func WithBundleName(name string) Option {
	return func(s *Service) {
		s.bundleName = strings.TrimSpace(name)
	}
}

// New returns a Service driving b and reporting to sender.
func New(b backend.Backend, sender Sender, opts ...Option) *Service {
	s := &Service{
		backend:   b,
		sender:    sender,
		installer: install.New(),
		lifecycle: noopLifecycle{},
		log:       zerolog.Nop(),
		goos:      runtime.GOOS,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialog == nil {
		s.dialog = logDialog{log: s.log}
	}
	return s
}

// Initialize configures the backend, starts relaying its events and checks
// for updates once. onReady is called with the release each time an update
// finishes downloading. The periodic re-check, when configured, stops when
// ctx is cancelled.
func (s *Service) Initialize(ctx context.Context, onReady func(status.Release)) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return fmt.Errorf("update service already initialized")
	}
	s.initialized = true
	s.ctx = ctx
	s.onReady = onReady
	auto := s.autoDownload
	s.mu.Unlock()

	if err := s.backend.SetFeed(s.feed); err != nil {
		return err
	}
	// Downloads are started by the service so that auto-download and the
	// user's download command take the same path.
	s.backend.SetAutoDownload(false)
	unsubscribe := s.backend.Subscribe(s.onEvent)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.log.Info().Str("feed", s.feed.String()).Bool("autoDownload", auto).Msg("update service initialized")
	s.CheckForUpdates(ctx)

	if s.checkInterval > 0 {
		s.wg.Add(1)
		go s.recheck(ctx)
	}
	return nil
}

// Register routes the renderer's update commands on router.
func (s *Service) Register(router *ipc.Router) {
	router.HandleCommand(status.CommandCheckForUpdates, func(ctx context.Context, _ ipc.Message) error {
		s.CheckForUpdates(ctx)
		return nil
	})
	router.HandleCommand(status.CommandDownloadUpdate, func(ctx context.Context, _ ipc.Message) error {
		s.DownloadUpdate(ctx)
		return nil
	})
	router.HandleCommand(status.CommandInstallUpdateAndRestart, func(ctx context.Context, _ ipc.Message) error {
		return s.InstallUpdateAndRestart(ctx)
	})
}

func (s *Service) recheck(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Debug().Msg("periodic update check")
			s.CheckForUpdates(ctx)
		}
	}
}

// CheckForUpdates starts a feed check in the background. The backend
// ignores the request while a check is already running.
func (s *Service) CheckForUpdates(ctx context.Context) {
	s.background(ctx, "check for updates", s.backend.CheckForUpdates)
}

// DownloadUpdate starts downloading the detected update in the background.
// The backend reports an Error status when nothing was detected.
func (s *Service) DownloadUpdate(ctx context.Context) {
	s.background(ctx, "download update", s.backend.DownloadUpdate)
}

func (s *Service) background(ctx context.Context, what string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(ctx); err != nil {
			s.log.Warn().Err(err).Msg(what + " failed")
		}
	}()
}

// Wait blocks until background checks and downloads have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close stops relaying backend events.
func (s *Service) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// SetAutoDownload changes whether available updates download without a
// command from the renderer.
func (s *Service) SetAutoDownload(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoDownload = enabled
}

// CurrentStatus returns the last status sent to the renderer.
func (s *Service) CurrentStatus() status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Downloaded returns the release waiting to be installed, if any.
func (s *Service) Downloaded() (status.Release, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloaded == nil {
		return status.Release{}, false
	}
	return *s.downloaded, true
}

// InstallUpdateAndRestart installs the downloaded update and relaunches the
// application.
func (s *Service) InstallUpdateAndRestart(ctx context.Context) error {
	return s.installUpdate(ctx, true)
}

// InstallUpdateAndQuit installs the downloaded update and exits.
func (s *Service) InstallUpdateAndQuit(ctx context.Context) error {
	return s.installUpdate(ctx, false)
}

func (s *Service) installUpdate(ctx context.Context, restart bool) error {
	s.log.Info().Bool("restart", restart).Str("os", s.goos).Msg("installing update")
	s.lifecycle.SetQuitting()

	var err error
	if s.goos == "darwin" {
		err = s.installManually(ctx)
	} else {
		err = s.backend.QuitAndInstall(ctx)
		if err != nil {
			s.relay(ctx, status.Error, backend.Event{Kind: backend.EventError, Err: err}.Payload())
		}
	}
	if err != nil {
		return err
	}

	if restart {
		if err := s.lifecycle.Relaunch(); err != nil {
			return fmt.Errorf("relaunch: %w", err)
		}
		return nil
	}
	s.lifecycle.Quit()
	return nil
}

// installManually extracts the downloaded archive and swaps it in place of
// the running application bundle.
func (s *Service) installManually(ctx context.Context) error {
	rel, ok := s.Downloaded()
	if !ok {
		if r, found := s.backend.Downloaded(); found {
			rel, ok = r, true
		}
	}
	if !ok {
		err := appErrors.New(appErrors.CodeNothingToInstall, "No update has been downloaded", nil)
		s.relay(ctx, status.Error, backend.Event{Kind: backend.EventError, Err: err}.Payload())
		return err
	}

	plan, err := install.NewPlan(rel.DownloadedFile, install.BundlePath(s.executable), s.bundleName)
	if err != nil {
		s.dialog.Error("Error", "Error occurred while installing update", appErrors.DetailOf(err))
		return err
	}

	s.relay(ctx, status.InstallingUpdate, plan.Info())
	if err := s.installer.Install(ctx, plan); err != nil {
		s.log.Error().Err(err).Msg("manual install failed")
		if appErrors.IsCode(err, appErrors.CodeExtractionError) {
			s.dialog.Error("Error", "Error occurred while extracting archive", appErrors.DetailOf(err))
			return err
		}
		s.dialog.Error("Error", "Error occurred while installing update", appErrors.DetailOf(err))
		s.relay(ctx, status.Error, backend.Event{Kind: backend.EventError, Err: err}.Payload())
		return err
	}

	s.mu.Lock()
	s.downloaded = nil
	s.mu.Unlock()
	s.relay(ctx, status.UpdateApplied, nil)
	return nil
}

func (s *Service) onEvent(ev backend.Event) {
	st := ev.Kind.Status()
	payload := ev.Payload()

	s.mu.Lock()
	ctx := s.ctx
	onReady := s.onReady
	auto := s.autoDownload
	if st == status.UpdateDownloaded && ev.Release != nil {
		rel := *ev.Release
		s.downloaded = &rel
	}
	s.mu.Unlock()

	switch st {
	case status.DownloadProgress:
		if ev.Progress != nil {
			s.log.Info().Msg(ProgressLine(*ev.Progress))
		}
	case status.Error:
		s.log.Error().Err(ev.Err).Msg("Error in auto-updater")
	}

	s.relay(ctx, st, payload)

	switch st {
	case status.UpdateAvailable:
		if auto {
			s.DownloadUpdate(ctx)
		}
	case status.UpdateDownloaded:
		if onReady != nil && ev.Release != nil {
			onReady(*ev.Release)
		}
	}
}

// relay sends (s, payload) to the renderer and records it as current.
func (s *Service) relay(ctx context.Context, st status.Status, payload any) {
	s.mu.Lock()
	s.current = st
	s.mu.Unlock()

	msg, err := ipc.StatusMessage(st, payload)
	if err != nil {
		s.log.Error().Err(err).Str("status", st.String()).Msg("encode status")
		return
	}
	s.log.Debug().Str("status", st.String()).Msg("relaying status")
	if err := s.sender.Send(ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("status", st.String()).Msg("relay status")
	}
}

type noopLifecycle struct{}

func (noopLifecycle) SetQuitting()    {}
func (noopLifecycle) Relaunch() error { return nil }
func (noopLifecycle) Quit()           {}

type logDialog struct {
	log zerolog.Logger
}

func (d logDialog) Error(title, message, detail string) {
	d.log.Error().Str("title", title).Str("detail", detail).Msg(message)
}
