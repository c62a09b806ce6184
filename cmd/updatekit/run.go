package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"updatekit/internal/backend"
	"updatekit/internal/config"
	"updatekit/internal/debug"
	"updatekit/internal/ipc"
	"updatekit/internal/platform"
	"updatekit/internal/renderer"
	"updatekit/internal/service"
	"updatekit/internal/session"
	"updatekit/internal/status"
	"updatekit/internal/ui"
)

const appName = "updatekit"

func run(ctx context.Context, opts runtimeOptions, lifecycle *processLifecycle) error {
	log := debug.Logger("main")
	log.Info().
		Str("role", opts.role).
		Str("transport", opts.transport).
		Bool("autoDownload", opts.autoDownload).
		Msg("starting")

	t, err := openTransport(opts, os.Stdin, os.Stdout, nil, debug.Logger("ipc"))
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	defer func() {
		cancel()
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Msg("close transport")
		}
		_ = g.Wait()
	}()

	lifecycle.BindQuit(cancel)

	var (
		surface *ui.Surface
		dialog  service.Dialog
		rnd     *renderer.Renderer
	)
	if t.renderer != nil {
		surface = ui.NewSurface()
		d := ui.NewDialog(surface, debug.Logger("dialog"))
		defer d.Close()
		dialog = d

		store, err := openSessionStore(ctx, opts)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("close session store")
			}
		}()
		rnd = newRenderer(store, surface, t.renderer, opts, log)
		router := ipc.NewRouter(ipc.WithRouterLogger(debug.Logger("renderer-router")))
		rnd.Register(router)
		serve(g, ctx, router, t.renderer)
	}

	var svc *service.Service
	if t.service != nil {
		b, err := newBackend()
		if err != nil {
			return err
		}
		svc = newService(b, t.service, opts, lifecycle, dialog)
		router := ipc.NewRouter(ipc.WithRouterLogger(debug.Logger("service-router")))
		svc.Register(router)
		router.HandleCommand(status.CommandRestartNormal, func(context.Context, ipc.Message) error {
			return lifecycle.Relaunch()
		})
		serve(g, ctx, router, t.service)

		defer func() {
			cancel()
			svc.Close()
			svc.Wait()
		}()
		err = svc.Initialize(ctx, func(rel status.Release) {
			log.Info().Str("version", rel.Version).Str("file", rel.DownloadedFile).Msg("update ready to install")
		})
		if err != nil {
			return fmt.Errorf("initialize update service: %w", err)
		}
	}

	if rnd == nil {
		// Headless: runs until signalled, quit by an install, or the peer
		// closes the transport.
		<-ctx.Done()
		if lifecycle.Quitting() {
			log.Info().Msg("stopped to finish an update install")
		}
		return nil
	}

	host := describeHost(ctx, platform.New(), log)
	app, err := ui.NewApp(ui.Config{
		Context:      ctx,
		Controller:   controller{Renderer: rnd, svc: svc},
		Surface:      surface,
		AppName:      appName,
		Version:      Version,
		Host:         host,
		GlamourStyle: opts.glamourStyle,
		AutoDownload: opts.autoDownload,
		SaveAutoDownload: func(enabled bool) error {
			return config.SaveAutoDownload(enabled)
		},
		Installing: lifecycle.Quitting,
	})
	if err != nil {
		return fmt.Errorf("initialize UI: %w", err)
	}
	return runProgram(app, func(app *ui.App) programRunner {
		prog := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
		surface.Attach(prog)
		lifecycle.BindQuit(prog.Quit)
		return prog
	})
}

// serve runs router on ep. The process stops when the peer closes the
// endpoint.
func serve(g *errgroup.Group, ctx context.Context, router *ipc.Router, ep ipc.Endpoint) {
	g.Go(func() error {
		err := router.Serve(ctx, ep)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil {
			return errPeerClosed
		}
		return err
	})
}

var errPeerClosed = errors.New("peer closed the transport")

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(*ui.App) programRunner

func runProgram(app *ui.App, factory programFactory) error {
	if factory == nil {
		return fmt.Errorf("program factory is nil")
	}
	prog := factory(app)
	if prog == nil {
		return fmt.Errorf("program is nil")
	}
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run UI: %w", err)
	}
	return nil
}

// controller forwards the auto-download toggle to the in-process service
// as well as the renderer.
type controller struct {
	*renderer.Renderer
	svc *service.Service
}

func (c controller) SetAutoDownload(enabled bool) {
	c.Renderer.SetAutoDownload(enabled)
	if c.svc != nil {
		c.svc.SetAutoDownload(enabled)
	}
}

func newRenderer(store session.Store, surface *ui.Surface, ep ipc.Endpoint, opts runtimeOptions, log zerolog.Logger) *renderer.Renderer {
	return renderer.New(store, surface, ep,
		renderer.WithAutoDownload(opts.autoDownload),
		renderer.WithLogger(debug.Logger("renderer")),
		renderer.WithHooks(renderer.Hooks{
			OnUpdateAvailable: func(rel status.Release) {
				log.Info().Str("version", rel.Version).Msg("update available")
			},
			OnUpdateApplied: func() {
				log.Info().Msg("update applied")
			},
		}),
	)
}

func newBackend() (*backend.GitHub, error) {
	bopts := []backend.Option{
		backend.WithCurrentVersion(Version),
		backend.WithTimeout(config.GetDuration(config.KeyFeedTimeout)),
		backend.WithLogger(debug.Logger("backend")),
	}
	if dir := config.GetString(config.KeyCacheDir); dir != "" {
		bopts = append(bopts, backend.WithCacheDir(dir))
	}
	b, err := backend.NewGitHub(bopts...)
	if err != nil {
		return nil, fmt.Errorf("create update backend: %w", err)
	}
	return b, nil
}

func newService(b backend.Backend, ep ipc.Endpoint, opts runtimeOptions, lifecycle service.Lifecycle, dialog service.Dialog) *service.Service {
	exe, _ := os.Executable()
	return service.New(b, ep,
		service.WithFeed(backend.Feed{
			Owner:      config.GetString(config.KeyFeedOwner),
			Repo:       config.GetString(config.KeyFeedRepo),
			Prerelease: config.GetBool(config.KeyFeedPrerelease),
		}),
		service.WithAutoDownload(opts.autoDownload),
		service.WithCheckInterval(opts.checkInterval),
		service.WithLifecycle(lifecycle),
		service.WithDialog(dialog),
		service.WithExecutable(exe),
		service.WithBundleName(config.GetString(config.KeyAppName)),
		service.WithLogger(debug.Logger("service")),
	)
}

func openSessionStore(ctx context.Context, opts runtimeOptions) (session.Store, error) {
	switch opts.sessionStore {
	case "", config.SessionMemory:
		return session.NewMemoryStore(), nil
	case config.SessionSQLite:
		path := opts.sessionPath
		if path == "" {
			dir, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("determine cache directory: %w", err)
			}
			path = filepath.Join(dir, appName, "session.db")
		}
		store, err := session.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown session store %q", opts.sessionStore)
}

type hostDescriber interface {
	DescribeHost(ctx context.Context) (platform.Host, error)
}

func describeHost(ctx context.Context, p hostDescriber, log zerolog.Logger) string {
	h, err := p.DescribeHost(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("describe host")
	}
	return h.String()
}

type prober interface {
	hostDescriber
	GOOS() string
	SupportedLinuxPackageFormat(ctx context.Context) platform.PackageFormat
}

// printProbe reports what the platform probe sees on this machine.
func printProbe(ctx context.Context, w io.Writer, p prober) {
	h, err := p.DescribeHost(ctx)
	if err != nil {
		fmt.Fprintf(w, "Host: unknown (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Host: %s\n", h)
	}
	if h.Hostname != "" {
		fmt.Fprintf(w, "Hostname: %s\n", h.Hostname)
	}
	if p.GOOS() != "linux" {
		fmt.Fprintf(w, "Package format: n/a (%s)\n", p.GOOS())
		return
	}
	format := p.SupportedLinuxPackageFormat(ctx)
	if format == platform.FormatNone {
		fmt.Fprintln(w, "Package format: none")
		return
	}
	fmt.Fprintf(w, "Package format: %s\n", format)
}
