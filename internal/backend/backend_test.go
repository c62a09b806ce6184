package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "updatekit/internal/errors"
	"updatekit/internal/status"
)

type fakeDetector struct {
	mu      sync.Mutex
	release *status.Release
	asset   []byte
	err     error
	calls   int
	block   chan struct{}
	entered chan struct{}
	dlErr   error
}

func (f *fakeDetector) DetectLatest(ctx context.Context, _ Feed) (*candidate, bool, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, false, f.err
	}
	if f.release == nil {
		return nil, false, nil
	}
	return &candidate{release: *f.release, assetID: 7}, true, nil
}

func (f *fakeDetector) Download(context.Context, *candidate) (io.ReadCloser, error) {
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	return io.NopCloser(bytes.NewReader(f.asset)), nil
}

func withDetector(d detector) Option {
	return func(g *GitHub) {
		g.det = d
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestBackend(t *testing.T, det *fakeDetector, current string) (*GitHub, *recorder) {
	t.Helper()
	g, err := NewGitHub(
		withDetector(det),
		WithCurrentVersion(current),
		WithCacheDir(t.TempDir()),
		WithProgressInterval(0),
		WithPlatform("linux", "amd64"),
	)
	require.NoError(t, err)
	require.NoError(t, g.SetFeed(Feed{Owner: "acme", Repo: "app"}))
	rec := &recorder{}
	g.Subscribe(rec.record)
	return g, rec
}

func TestCheckFindsNewerRelease(t *testing.T) {
	det := &fakeDetector{release: &status.Release{Version: "1.3.0", AssetName: "app.zip"}}
	g, rec := newTestBackend(t, det, "1.2.0")

	require.NoError(t, g.CheckForUpdates(context.Background()))
	assert.Equal(t, []EventKind{EventCheckingForUpdate, EventUpdateAvailable}, rec.kinds())
	assert.Equal(t, "1.3.0", rec.last().Release.Version)
	_, ok := g.Downloaded()
	assert.False(t, ok)
}

func TestCheckNotAvailable(t *testing.T) {
	tests := []struct {
		name    string
		release *status.Release
		current string
	}{
		{"same version", &status.Release{Version: "1.2.0"}, "1.2.0"},
		{"older feed", &status.Release{Version: "1.1.0"}, "v1.2.0"},
		{"no release", nil, "1.2.0"},
		{"dev build", &status.Release{Version: "9.0.0"}, "dev"},
		{"prerelease of current", &status.Release{Version: "1.2.0-rc.1"}, "1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, rec := newTestBackend(t, &fakeDetector{release: tt.release}, tt.current)
			require.NoError(t, g.CheckForUpdates(context.Background()))
			assert.Equal(t, []EventKind{EventCheckingForUpdate, EventUpdateNotAvailable}, rec.kinds())
		})
	}
}

func TestCheckFeedError(t *testing.T) {
	g, rec := newTestBackend(t, &fakeDetector{err: errors.New("HTTP 502")}, "1.0.0")

	err := g.CheckForUpdates(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeFeedError))
	assert.Equal(t, []EventKind{EventCheckingForUpdate, EventError}, rec.kinds())

	info, ok := rec.last().Payload().(status.ErrorInfo)
	require.True(t, ok)
	assert.Equal(t, "feed_error", info.Code)
	assert.Contains(t, info.Message, "HTTP 502")
}

func TestCheckWithoutFeed(t *testing.T) {
	g, err := NewGitHub(withDetector(&fakeDetector{}), WithCacheDir(t.TempDir()))
	require.NoError(t, err)
	err = g.CheckForUpdates(context.Background())
	assert.True(t, appErrors.IsCode(err, appErrors.CodeConfigurationError))
	assert.Error(t, g.SetFeed(Feed{Owner: "acme"}))
}

func TestConcurrentCheckIsDeduplicated(t *testing.T) {
	det := &fakeDetector{
		release: &status.Release{Version: "2.0.0"},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	g, rec := newTestBackend(t, det, "1.0.0")

	done := make(chan error, 1)
	go func() { done <- g.CheckForUpdates(context.Background()) }()
	<-det.entered

	require.NoError(t, g.CheckForUpdates(context.Background()))
	close(det.block)
	require.NoError(t, <-done)

	assert.Equal(t, 1, det.calls)
	assert.Equal(t, []EventKind{EventCheckingForUpdate, EventUpdateAvailable}, rec.kinds())
}

func TestDownloadWithoutCheck(t *testing.T) {
	g, rec := newTestBackend(t, &fakeDetector{}, "1.0.0")
	err := g.DownloadUpdate(context.Background())
	assert.True(t, appErrors.IsCode(err, appErrors.CodeNothingToInstall))
	assert.Equal(t, []EventKind{EventError}, rec.kinds())
}

func TestDownloadWritesAssetAndReportsProgress(t *testing.T) {
	asset := bytes.Repeat([]byte("x"), 64*1024)
	det := &fakeDetector{
		release: &status.Release{Version: "1.1.0", AssetName: "app_linux_amd64.zip", AssetSize: int64(len(asset))},
		asset:   asset,
	}
	g, rec := newTestBackend(t, det, "1.0.0")
	ctx := context.Background()
	require.NoError(t, g.CheckForUpdates(ctx))
	require.NoError(t, g.DownloadUpdate(ctx))

	kinds := rec.kinds()
	assert.Equal(t, EventUpdateDownloaded, kinds[len(kinds)-1])
	assert.Contains(t, kinds, EventDownloadProgress)

	var lastProgress status.Progress
	for _, ev := range rec.events {
		if ev.Kind == EventDownloadProgress {
			lastProgress = *ev.Progress
		}
	}
	assert.Equal(t, 100, lastProgress.RoundedPercent())
	assert.Equal(t, int64(len(asset)), lastProgress.Transferred)

	rel, ok := g.Downloaded()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(g.CacheDir(), "app_linux_amd64.zip"), rel.DownloadedFile)
	data, err := os.ReadFile(rel.DownloadedFile)
	require.NoError(t, err)
	assert.Equal(t, asset, data)

	require.NoError(t, g.DownloadUpdate(ctx))
	assert.Equal(t, EventUpdateDownloaded, rec.last().Kind)
}

func TestDownloadFailure(t *testing.T) {
	det := &fakeDetector{release: &status.Release{Version: "1.1.0"}, dlErr: errors.New("reset by peer")}
	g, rec := newTestBackend(t, det, "1.0.0")
	require.NoError(t, g.CheckForUpdates(context.Background()))

	err := g.DownloadUpdate(context.Background())
	assert.True(t, appErrors.IsCode(err, appErrors.CodeFeedError))
	assert.Equal(t, EventError, rec.last().Kind)
	_, ok := g.Downloaded()
	assert.False(t, ok)
}

func TestAutoDownload(t *testing.T) {
	det := &fakeDetector{release: &status.Release{Version: "1.1.0", AssetSize: 3}, asset: []byte("bin")}
	g, rec := newTestBackend(t, det, "1.0.0")
	g.SetAutoDownload(true)

	require.NoError(t, g.CheckForUpdates(context.Background()))
	kinds := rec.kinds()
	assert.Equal(t, EventUpdateAvailable, kinds[1])
	assert.Equal(t, EventUpdateDownloaded, kinds[len(kinds)-1])
}

func TestQuitAndInstallAppliesDownloadedBinary(t *testing.T) {
	det := &fakeDetector{
		release: &status.Release{Version: "1.1.0", AssetName: "updatekit_linux_amd64", AssetSize: 6},
		asset:   []byte("binary"),
	}
	g, _ := newTestBackend(t, det, "1.0.0")
	target := filepath.Join(t.TempDir(), "updatekit")
	g.exe = target

	var applied []byte
	var appliedTo string
	g.apply = func(r io.Reader, path string) error {
		data, err := io.ReadAll(r)
		applied, appliedTo = data, path
		return err
	}

	ctx := context.Background()
	err := g.QuitAndInstall(ctx)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeNothingToInstall))

	require.NoError(t, g.CheckForUpdates(ctx))
	require.NoError(t, g.DownloadUpdate(ctx))
	require.NoError(t, g.QuitAndInstall(ctx))

	assert.Equal(t, []byte("binary"), applied)
	assert.Equal(t, target, appliedTo)
	_, ok := g.Downloaded()
	assert.False(t, ok)
}

func TestQuitAndInstallApplyFailure(t *testing.T) {
	det := &fakeDetector{
		release: &status.Release{Version: "1.1.0", AssetName: "updatekit_linux_amd64", AssetSize: 3},
		asset:   []byte("bin"),
	}
	g, _ := newTestBackend(t, det, "1.0.0")
	g.exe = filepath.Join(t.TempDir(), "updatekit")
	g.apply = func(io.Reader, string) error { return errors.New("text file busy") }

	ctx := context.Background()
	require.NoError(t, g.CheckForUpdates(ctx))
	require.NoError(t, g.DownloadUpdate(ctx))

	err := g.QuitAndInstall(ctx)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeInstallError))
	_, ok := g.Downloaded()
	assert.True(t, ok, "failed install keeps the download")
}

func TestProgressWriterThrottles(t *testing.T) {
	now := time.Unix(0, 0)
	var events []Event
	pw := &progressWriter{
		emit:  func(ev Event) { events = append(events, ev) },
		now:   func() time.Time { return now },
		every: time.Second,
		total: 30,
		start: now,
	}
	_, _ = pw.Write(make([]byte, 10))
	_, _ = pw.Write(make([]byte, 10))
	now = now.Add(2 * time.Second)
	_, _ = pw.Write(make([]byte, 10))
	pw.finish()

	require.Len(t, events, 2)
	assert.Equal(t, int64(10), events[0].Progress.Transferred)
	assert.Equal(t, int64(30), events[1].Progress.Transferred)
	assert.InDelta(t, 15.0, events[1].Progress.BytesPerSecond, 0.001)
}

func TestEventStatusAndPayload(t *testing.T) {
	assert.Equal(t, status.CheckingForUpdates, EventCheckingForUpdate.Status())
	assert.Equal(t, status.UpdateDownloaded, EventUpdateDownloaded.Status())
	assert.Equal(t, status.Error, EventError.Status())

	assert.Nil(t, Event{Kind: EventCheckingForUpdate}.Payload())
	rel := status.Release{Version: "1.0.0"}
	assert.Equal(t, rel, Event{Kind: EventUpdateAvailable, Release: &rel}.Payload())
	prog := status.Progress{Percent: 5}
	assert.Equal(t, prog, Event{Kind: EventDownloadProgress, Progress: &prog}.Payload())
	assert.Equal(t, status.ErrorInfo{Code: "unknown", Message: "unknown error"}, Event{Kind: EventError}.Payload())
}

func TestEmitterUnsubscribe(t *testing.T) {
	var e Emitter
	var a, b int
	offA := e.Subscribe(func(Event) { a++ })
	e.Subscribe(func(Event) { b++ })
	e.Emit(Event{})
	offA()
	offA()
	e.Emit(Event{})
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestNewer(t *testing.T) {
	newer, err := Newer("v1.2.3", "1.10.0")
	require.NoError(t, err)
	assert.True(t, newer)

	newer, err = Newer("1.2.3", "1.2.3-beta.1")
	require.NoError(t, err)
	assert.False(t, newer)

	_, err = Newer("abc", "1.0.0")
	assert.Error(t, err)

	assert.True(t, IsDevBuild("development"))
	assert.True(t, IsDevBuild("not-a-version"))
	assert.False(t, IsDevBuild("v0.1.0"))
}
