package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/inconshreveable/go-update"
	"github.com/rs/zerolog"

	appErrors "updatekit/internal/errors"
	"updatekit/internal/status"
)

// Default configuration values.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultProgressInterval = 250 * time.Millisecond
)

// candidate is a release found on the feed together with what is needed to
// fetch its asset.
type candidate struct {
	release status.Release
	assetID int64
	raw     *selfupdate.Release
}

type detector interface {
	DetectLatest(ctx context.Context, feed Feed) (*candidate, bool, error)
	Download(ctx context.Context, c *candidate) (io.ReadCloser, error)
}

type selfupdateDetector struct {
	source selfupdate.Source
	goos   string
	goarch string
}

func (d selfupdateDetector) DetectLatest(ctx context.Context, feed Feed) (*candidate, bool, error) {
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     d.source,
		OS:         d.goos,
		Arch:       d.goarch,
		Prerelease: feed.Prerelease,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create updater: %w", err)
	}
	rel, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(feed.Owner, feed.Repo))
	if err != nil {
		return nil, false, fmt.Errorf("detect latest release of %s: %w", feed, err)
	}
	if !found || rel == nil {
		return nil, false, nil
	}
	return &candidate{
		release: status.Release{
			Version:     rel.Version(),
			Name:        rel.Name,
			Notes:       rel.ReleaseNotes,
			ReleaseDate: rel.PublishedAt,
			URL:         rel.URL,
			AssetName:   rel.AssetName,
			AssetSize:   int64(rel.AssetByteSize),
		},
		assetID: rel.AssetID,
		raw:     rel,
	}, true, nil
}

func (d selfupdateDetector) Download(ctx context.Context, c *candidate) (io.ReadCloser, error) {
	if c.raw == nil {
		return nil, fmt.Errorf("release %s has no asset", c.release.Version)
	}
	return d.source.DownloadReleaseAsset(ctx, c.raw, c.assetID)
}

// GitHub is a Backend polling GitHub releases.
type GitHub struct {
	Emitter

	det           detector
	apiToken      string
	current       string
	goos          string
	goarch        string
	cacheDir      string
	exe           string
	cmdName       string
	timeout       time.Duration
	progressEvery time.Duration
	apply         func(r io.Reader, target string) error
	log           zerolog.Logger
	now           func() time.Time

	mu           sync.Mutex
	feed         Feed
	autoDownload bool
	checking     bool
	downloading  bool
	latest       *candidate
	downloaded   *status.Release
}

// Option configures a GitHub backend.
type Option func(*GitHub)

// WithCurrentVersion sets the version of the running application.
func WithCurrentVersion(v string) Option {
	return func(g *GitHub) {
		g.current = strings.TrimSpace(v)
	}
}

// WithPlatform overrides the OS and architecture used to pick release assets.
func WithPlatform(goos, goarch string) Option {
	return func(g *GitHub) {
		if goos != "" {
			g.goos = goos
		}
		if goarch != "" {
			g.goarch = goarch
		}
	}
}

// WithCacheDir sets where downloaded assets are stored.
func WithCacheDir(dir string) Option {
	return func(g *GitHub) {
		if strings.TrimSpace(dir) != "" {
			g.cacheDir = dir
		}
	}
}

// WithExecutable sets the binary replaced by QuitAndInstall.
func WithExecutable(path string) Option {
	return func(g *GitHub) {
		g.exe = path
	}
}

// WithTimeout bounds a single feed check.
func WithTimeout(d time.Duration) Option {
	return func(g *GitHub) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithProgressInterval sets the minimum time between progress events.
func WithProgressInterval(d time.Duration) Option {
	return func(g *GitHub) {
		g.progressEvery = d
	}
}

// WithAPIToken authenticates feed requests.
func WithAPIToken(token string) Option {
	return func(g *GitHub) {
		g.apiToken = token
	}
}

// WithLogger sets the backend logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *GitHub) {
		g.log = l
	}
}

// NewGitHub creates a GitHub releases backend.
func NewGitHub(opts ...Option) (*GitHub, error) {
	g := &GitHub{
		goos:          runtime.GOOS,
		goarch:        runtime.GOARCH,
		timeout:       DefaultTimeout,
		progressEvery: DefaultProgressInterval,
		apply:         applyBinary,
		log:           zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("determine cache directory: %w", err)
		}
		g.cacheDir = filepath.Join(dir, "updatekit-updater", "pending")
	}
	if g.det == nil {
		source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{APIToken: g.apiToken})
		if err != nil {
			return nil, fmt.Errorf("create update source: %w", err)
		}
		g.det = selfupdateDetector{source: source, goos: g.goos, goarch: g.goarch}
	}
	return g, nil
}

// SetFeed implements Backend.
func (g *GitHub) SetFeed(feed Feed) error {
	if err := feed.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.feed != feed {
		g.latest = nil
	}
	g.feed = feed
	return nil
}

// SetAutoDownload implements Backend.
func (g *GitHub) SetAutoDownload(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoDownload = enabled
}

// CacheDir returns the directory downloads are stored in.
func (g *GitHub) CacheDir() string {
	return g.cacheDir
}

// Downloaded implements Backend.
func (g *GitHub) Downloaded() (status.Release, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.downloaded == nil {
		return status.Release{}, false
	}
	return *g.downloaded, true
}

// CheckForUpdates implements Backend.
func (g *GitHub) CheckForUpdates(ctx context.Context) error {
	g.mu.Lock()
	if g.checking {
		g.mu.Unlock()
		g.log.Debug().Msg("check already in progress")
		return nil
	}
	feed := g.feed
	if err := feed.Validate(); err != nil {
		g.mu.Unlock()
		g.emitError(err)
		return err
	}
	g.checking = true
	g.mu.Unlock()

	rel, err := g.check(ctx, feed)

	g.mu.Lock()
	g.checking = false
	auto := g.autoDownload
	g.mu.Unlock()

	if err != nil || rel == nil || !auto {
		return err
	}
	return g.DownloadUpdate(ctx)
}

// check runs one feed query and returns the release when it is newer than
// the running version.
func (g *GitHub) check(ctx context.Context, feed Feed) (*status.Release, error) {
	g.Emit(Event{Kind: EventCheckingForUpdate})

	checkCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	c, found, err := g.det.DetectLatest(checkCtx, feed)
	if err != nil {
		err = appErrors.New(appErrors.CodeFeedError, "Error while checking for updates", err)
		g.emitError(err)
		return nil, err
	}
	if !found {
		g.Emit(Event{Kind: EventUpdateNotAvailable, Release: &status.Release{Version: g.current}})
		return nil, nil
	}

	rel := c.release
	if IsDevBuild(g.current) {
		g.log.Debug().Str("current", g.current).Str("latest", rel.Version).Msg("development build, not offering update")
		g.Emit(Event{Kind: EventUpdateNotAvailable, Release: &rel})
		return nil, nil
	}
	newer, err := Newer(g.current, rel.Version)
	if err != nil {
		err = appErrors.New(appErrors.CodeFeedError, "Error while checking for updates", err)
		g.emitError(err)
		return nil, err
	}
	if !newer {
		g.mu.Lock()
		g.latest = nil
		g.mu.Unlock()
		g.Emit(Event{Kind: EventUpdateNotAvailable, Release: &rel})
		return nil, nil
	}

	g.mu.Lock()
	g.latest = c
	g.mu.Unlock()
	g.Emit(Event{Kind: EventUpdateAvailable, Release: &rel})
	return &rel, nil
}

// DownloadUpdate implements Backend.
func (g *GitHub) DownloadUpdate(ctx context.Context) error {
	g.mu.Lock()
	c := g.latest
	if c == nil {
		g.mu.Unlock()
		err := appErrors.New(appErrors.CodeNothingToInstall, "Please check update first", nil)
		g.emitError(err)
		return err
	}
	if g.downloaded != nil && g.downloaded.Version == c.release.Version {
		rel := *g.downloaded
		g.mu.Unlock()
		g.Emit(Event{Kind: EventUpdateDownloaded, Release: &rel})
		return nil
	}
	if g.downloading {
		g.mu.Unlock()
		g.log.Debug().Msg("download already in progress")
		return nil
	}
	g.downloading = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.downloading = false
		g.mu.Unlock()
	}()

	path, err := g.download(ctx, c)
	if err != nil {
		err = appErrors.New(appErrors.CodeFeedError, "Error while downloading update", err)
		g.emitError(err)
		return err
	}

	rel := c.release
	rel.DownloadedFile = path
	g.mu.Lock()
	g.downloaded = &rel
	g.mu.Unlock()
	g.Emit(Event{Kind: EventUpdateDownloaded, Release: &rel})
	return nil
}

func (g *GitHub) download(ctx context.Context, c *candidate) (string, error) {
	rc, err := g.det.Download(ctx, c)
	if err != nil {
		return "", fmt.Errorf("request asset: %w", err)
	}
	defer func() { _ = rc.Close() }()

	//nolint:gosec // G301: cache directory needs standard permissions
	if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	name := filepath.Base(strings.TrimSpace(c.release.AssetName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "update-" + strings.TrimPrefix(c.release.Version, "v")
	}
	final := filepath.Join(g.cacheDir, name)

	tmp, err := os.CreateTemp(g.cacheDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	pw := &progressWriter{
		emit:  g.Emit,
		now:   g.now,
		every: g.progressEvery,
		total: c.release.AssetSize,
		start: g.now(),
	}
	if _, err := io.Copy(io.MultiWriter(tmp, pw), readerWithContext(ctx, rc)); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write asset: %w", err)
	}
	pw.finish()
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		cleanup()
		return "", fmt.Errorf("move asset into cache: %w", err)
	}
	return final, nil
}

// QuitAndInstall implements Backend. It decompresses the downloaded asset
// and replaces the running executable with it.
func (g *GitHub) QuitAndInstall(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, ok := g.Downloaded()
	if !ok {
		return appErrors.New(appErrors.CodeNothingToInstall, "No update has been downloaded", nil)
	}

	exe, err := g.executable()
	if err != nil {
		return appErrors.New(appErrors.CodeInstallError, "Cannot locate executable", err)
	}

	//nolint:gosec // G304: path is the asset this backend downloaded
	f, err := os.Open(rel.DownloadedFile)
	if err != nil {
		return appErrors.New(appErrors.CodeInstallError, "Cannot open downloaded update", err)
	}
	defer func() { _ = f.Close() }()

	cmd := g.cmdName
	if cmd == "" {
		cmd = strings.TrimSuffix(filepath.Base(exe), ".exe")
	}
	bin, err := selfupdate.DecompressCommand(f, rel.AssetName, cmd, g.goos, g.goarch)
	if err != nil {
		return appErrors.New(appErrors.CodeExtractionError, "Error occurred while extracting archive", err)
	}
	if err := g.apply(bin, exe); err != nil {
		return appErrors.New(appErrors.CodeInstallError, "Error occurred while replacing executable", err)
	}

	g.mu.Lock()
	g.downloaded = nil
	g.latest = nil
	g.mu.Unlock()
	g.log.Info().Str("version", rel.Version).Str("target", exe).Msg("update installed")
	return nil
}

func (g *GitHub) executable() (string, error) {
	if g.exe != "" {
		return g.exe, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

func (g *GitHub) emitError(err error) {
	g.Emit(Event{Kind: EventError, Err: err})
}

func applyBinary(r io.Reader, target string) error {
	err := update.Apply(r, update.Options{TargetPath: target})
	if err == nil {
		return nil
	}
	if rerr := update.RollbackError(err); rerr != nil {
		return fmt.Errorf("%w (rollback failed: %v)", err, rerr)
	}
	return err
}

type progressWriter struct {
	emit        func(Event)
	now         func() time.Time
	every       time.Duration
	total       int64
	transferred int64
	start       time.Time
	last        time.Time
	sentFinal   bool
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.transferred += int64(len(b))
	now := p.now()
	if p.last.IsZero() || now.Sub(p.last) >= p.every {
		p.last = now
		p.send(now)
	}
	return len(b), nil
}

func (p *progressWriter) finish() {
	if p.sentFinal {
		return
	}
	p.send(p.now())
}

func (p *progressWriter) send(now time.Time) {
	prog := status.Progress{Transferred: p.transferred, Total: p.total}
	if p.total > 0 {
		prog.Percent = float64(p.transferred) / float64(p.total) * 100
	}
	if elapsed := now.Sub(p.start).Seconds(); elapsed > 0 {
		prog.BytesPerSecond = float64(p.transferred) / elapsed
	}
	p.sentFinal = p.total > 0 && p.transferred >= p.total
	p.emit(Event{Kind: EventDownloadProgress, Progress: &prog})
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
