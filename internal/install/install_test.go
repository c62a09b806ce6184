package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	appErrors "updatekit/internal/errors"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	handle func(name string, args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.handle != nil {
		return nil, f.handle(name, args)
	}
	return nil, nil
}

type fixture struct {
	plan Plan
	dir  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	apps := filepath.Join(dir, "Applications")
	cache := filepath.Join(dir, "cache", "pending")
	mustMkdir(t, filepath.Join(apps, "Assistant.app", "Contents"))
	writeFile(t, filepath.Join(apps, "Assistant.app", "Contents", "version"), "old")
	mustMkdir(t, cache)
	archive := filepath.Join(cache, "Assistant-1.1.0-mac.zip")
	writeFile(t, archive, "zip")

	plan, err := NewPlan(archive, filepath.Join(apps, "Assistant.app"), "")
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return fixture{plan: plan, dir: dir}
}

// dittoCreates simulates a successful extraction of a bundle carrying version.
func dittoCreates(t *testing.T, plan Plan, version string) func(string, []string) error {
	return func(name string, args []string) error {
		if name != "ditto" {
			return nil
		}
		staged := plan.StagedPath()
		if err := os.MkdirAll(filepath.Join(staged, "Contents"), 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(staged, "Contents", "version"), []byte(version), 0o644)
	}
}

func TestInstallSwapsBundle(t *testing.T) {
	fx := newFixture(t)
	runner := &fakeRunner{handle: dittoCreates(t, fx.plan, "new")}
	inst := New(WithRunner(runner))

	if err := inst.Install(context.Background(), fx.plan); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := readFile(t, filepath.Join(fx.plan.TargetPath(), "Contents", "version")); got != "new" {
		t.Fatalf("installed version = %q, want new", got)
	}
	assertMissing(t, fx.plan.BackupPath())
	assertMissing(t, fx.plan.StagedPath())

	if len(runner.calls) != 1 {
		t.Fatalf("expected one command, got %v", runner.calls)
	}
	want := []string{"-x", "-k", fx.plan.DownloadedFile, fx.plan.CacheFolder}
	got := runner.calls[0]
	if got.name != "ditto" || len(got.args) != len(want) {
		t.Fatalf("unexpected command %v", got)
	}
	for i := range want {
		if got.args[i] != want[i] {
			t.Fatalf("ditto arg %d = %q, want %q", i, got.args[i], want[i])
		}
	}
}

func TestInstallRemovesStaleStagedBundle(t *testing.T) {
	fx := newFixture(t)
	mustMkdir(t, fx.plan.StagedPath())
	writeFile(t, filepath.Join(fx.plan.StagedPath(), "stale"), "x")

	runner := &fakeRunner{handle: func(name string, args []string) error {
		if _, err := os.Stat(fx.plan.StagedPath()); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("staged bundle should be removed before extraction")
		}
		return dittoCreates(t, fx.plan, "new")(name, args)
	}}
	if err := New(WithRunner(runner)).Install(context.Background(), fx.plan); err != nil {
		t.Fatalf("Install: %v", err)
	}
	assertMissing(t, filepath.Join(fx.plan.TargetPath(), "stale"))
}

func TestInstallExtractionFailureLeavesAppUntouched(t *testing.T) {
	fx := newFixture(t)
	runner := &fakeRunner{handle: func(string, []string) error {
		return errors.New("ditto: Couldn't read PKZip signature")
	}}

	err := New(WithRunner(runner)).Install(context.Background(), fx.plan)
	if !appErrors.IsCode(err, appErrors.CodeExtractionError) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if got := readFile(t, filepath.Join(fx.plan.AppPath, "Contents", "version")); got != "old" {
		t.Fatalf("installed bundle changed: %q", got)
	}
	assertMissing(t, fx.plan.BackupPath())
}

func TestInstallArchiveWithoutBundle(t *testing.T) {
	fx := newFixture(t)
	err := New(WithRunner(&fakeRunner{})).Install(context.Background(), fx.plan)
	if !appErrors.IsCode(err, appErrors.CodeExtractionError) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if got := readFile(t, filepath.Join(fx.plan.AppPath, "Contents", "version")); got != "old" {
		t.Fatalf("installed bundle changed: %q", got)
	}
}

func TestInstallRollsBackWhenSwapFails(t *testing.T) {
	fx := newFixture(t)
	runner := &fakeRunner{handle: dittoCreates(t, fx.plan, "new")}
	inst := New(WithRunner(runner))
	inst.fs.rename = func(oldpath, newpath string) error {
		if oldpath == fx.plan.StagedPath() {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EPERM}
		}
		return os.Rename(oldpath, newpath)
	}

	err := inst.Install(context.Background(), fx.plan)
	if !appErrors.IsCode(err, appErrors.CodeInstallError) {
		t.Fatalf("expected install error, got %v", err)
	}
	if got := readFile(t, filepath.Join(fx.plan.AppPath, "Contents", "version")); got != "old" {
		t.Fatalf("previous bundle not restored: %q", got)
	}
	assertMissing(t, fx.plan.BackupPath())
	for _, c := range runner.calls {
		if c.name == "mv" {
			t.Fatalf("mv must only run for moves across volumes, got %v", runner.calls)
		}
	}
}

func TestInstallArchiveBundleNamedDifferently(t *testing.T) {
	fx := newFixture(t)
	apps := fx.plan.AppParent
	plan, err := NewPlan(fx.plan.DownloadedFile, fx.plan.AppPath, "Other.app")
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	mustMkdir(t, filepath.Join(apps, "Other.app", "Contents"))
	writeFile(t, filepath.Join(apps, "Other.app", "Contents", "version"), "unrelated")

	runner := &fakeRunner{}
	ditto := dittoCreates(t, plan, "new")
	runner.handle = func(name string, args []string) error {
		if name == "mv" {
			t.Errorf("unexpected mv %v", args)
		}
		return ditto(name, args)
	}
	if err := New(WithRunner(runner)).Install(context.Background(), plan); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := readFile(t, filepath.Join(fx.plan.AppPath, "Contents", "version")); got != "new" {
		t.Fatalf("installed version = %q, want new", got)
	}
	if got := readFile(t, filepath.Join(apps, "Other.app", "Contents", "version")); got != "unrelated" {
		t.Fatalf("unrelated bundle changed: %q", got)
	}
	assertMissing(t, filepath.Join(apps, "Other.app", "Other.app"))
	assertMissing(t, plan.BackupPath())
}

func TestMoveRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.app")
	dst := filepath.Join(dir, "dst.app")
	mustMkdir(t, src)
	mustMkdir(t, dst)

	runner := &fakeRunner{}
	inst := New(WithRunner(runner))
	inst.fs.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	if err := inst.move(context.Background(), src, dst); err == nil {
		t.Fatal("expected an error for an existing destination")
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no commands, got %v", runner.calls)
	}
	assertMissing(t, filepath.Join(dst, "src.app"))
}

func TestInstallFallsBackToMoveAcrossVolumes(t *testing.T) {
	fx := newFixture(t)
	runner := &fakeRunner{}
	ditto := dittoCreates(t, fx.plan, "new")
	runner.handle = func(name string, args []string) error {
		if name == "mv" {
			return os.Rename(args[0], args[1])
		}
		return ditto(name, args)
	}
	inst := New(WithRunner(runner))
	inst.fs.rename = func(oldpath, newpath string) error {
		if oldpath == fx.plan.StagedPath() {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}

	if err := inst.Install(context.Background(), fx.plan); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if got := readFile(t, filepath.Join(fx.plan.TargetPath(), "Contents", "version")); got != "new" {
		t.Fatalf("installed version = %q, want new", got)
	}
	if last := runner.calls[len(runner.calls)-1]; last.name != "mv" {
		t.Fatalf("expected mv fallback, got %v", last)
	}
}

func TestInstallWithoutExistingBundle(t *testing.T) {
	fx := newFixture(t)
	if err := os.RemoveAll(fx.plan.AppPath); err != nil {
		t.Fatal(err)
	}
	if err := New(WithRunner(&fakeRunner{handle: dittoCreates(t, fx.plan, "new")})).Install(context.Background(), fx.plan); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if got := readFile(t, filepath.Join(fx.plan.TargetPath(), "Contents", "version")); got != "new" {
		t.Fatalf("installed version = %q", got)
	}
}

func TestNewPlan(t *testing.T) {
	plan, err := NewPlan("/cache/pending/app.zip", "/Applications/Assistant.app", "Google Assistant.app")
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	info := plan.Info()
	if info.CacheFolder != "/cache/pending" || info.AppPathParent != "/Applications" {
		t.Fatalf("unexpected info %+v", info)
	}
	if plan.TargetPath() != "/Applications/Assistant.app" {
		t.Fatalf("TargetPath = %q", plan.TargetPath())
	}
	if plan.StagedPath() != "/cache/pending/Google Assistant.app" {
		t.Fatalf("StagedPath = %q", plan.StagedPath())
	}

	if _, err := NewPlan("", "/Applications/Assistant.app", ""); !appErrors.IsCode(err, appErrors.CodeNothingToInstall) {
		t.Fatalf("expected nothing-to-install, got %v", err)
	}
	if _, err := NewPlan("/cache/app.zip", "/", ""); !appErrors.IsCode(err, appErrors.CodeInstallError) {
		t.Fatalf("expected install error, got %v", err)
	}
}

func TestBundlePath(t *testing.T) {
	got := BundlePath("/Applications/Assistant.app/Contents/MacOS/Assistant")
	if got != "/Applications/Assistant.app" {
		t.Fatalf("BundlePath = %q", got)
	}
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected %s to be absent, err=%v", path, err)
	}
}
