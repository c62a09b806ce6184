// Package install performs the manual macOS install of a downloaded update:
// the release archive is extracted next to the download, then swapped in
// place of the running application bundle.
//
// The swap is transactional. The installed bundle is first renamed to a
// backup, the staged bundle is renamed into place, and the backup is
// restored if that fails. An extraction failure leaves the installed bundle
// untouched.
package install

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	appErrors "updatekit/internal/errors"
	"updatekit/internal/status"
)

const maxOutputSnippetLen = 200

// BackupSuffix is appended to the installed bundle while the swap runs.
const BackupSuffix = ".updatekit-backup"

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	//nolint:gosec // G204: installer intentionally shells out to ditto and mv
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		snippet := strings.TrimSpace(string(out))
		if len(snippet) > maxOutputSnippetLen {
			snippet = snippet[:maxOutputSnippetLen] + "..."
		}
		if snippet != "" {
			return out, fmt.Errorf("%s failed: %w (output: %s)", name, err, snippet)
		}
		return out, fmt.Errorf("%s failed: %w", name, err)
	}
	return out, nil
}

// BundlePath returns the application bundle containing exe, which lives at
// <bundle>/Contents/MacOS/<exe>.
func BundlePath(exe string) string {
	return filepath.Dir(filepath.Dir(filepath.Dir(exe)))
}

// Plan describes one install.
type Plan struct {
	DownloadedFile string
	CacheFolder    string
	AppPath        string
	AppParent      string
	BundleName     string
}

// NewPlan builds the plan for installing downloadedFile over the bundle at
// appPath. bundleName is the name of the bundle inside the archive and
// defaults to the name of the installed bundle. The new bundle always
// replaces appPath, whatever its name inside the archive.
func NewPlan(downloadedFile, appPath, bundleName string) (Plan, error) {
	downloadedFile = strings.TrimSpace(downloadedFile)
	if downloadedFile == "" {
		return Plan{}, appErrors.New(appErrors.CodeNothingToInstall, "No downloaded update to install", nil)
	}
	appPath = strings.TrimSpace(appPath)
	if appPath == "" || appPath == "." || appPath == string(filepath.Separator) {
		return Plan{}, appErrors.New(appErrors.CodeInstallError, "Cannot determine application bundle", nil)
	}
	appPath = filepath.Clean(appPath)
	if strings.TrimSpace(bundleName) == "" {
		bundleName = filepath.Base(appPath)
	}
	return Plan{
		DownloadedFile: downloadedFile,
		CacheFolder:    filepath.Dir(downloadedFile),
		AppPath:        appPath,
		AppParent:      filepath.Dir(appPath),
		BundleName:     filepath.Base(bundleName),
	}, nil
}

// Info returns the plan as the payload of InstallingUpdate.
func (p Plan) Info() status.InstallInfo {
	return status.InstallInfo{
		DownloadedFile: p.DownloadedFile,
		CacheFolder:    p.CacheFolder,
		AppPath:        p.AppPath,
		AppPathParent:  p.AppParent,
	}
}

// StagedPath is where the archive's bundle lands after extraction.
func (p Plan) StagedPath() string {
	return filepath.Join(p.CacheFolder, p.BundleName)
}

// TargetPath is where the new bundle is installed.
func (p Plan) TargetPath() string {
	return p.AppPath
}

// BackupPath holds the installed bundle during the swap.
func (p Plan) BackupPath() string {
	return p.AppPath + BackupSuffix
}

type fileOps struct {
	rename    func(oldpath, newpath string) error
	removeAll func(path string) error
	stat      func(path string) (os.FileInfo, error)
}

// Installer runs install plans.
type Installer struct {
	runner Runner
	fs     fileOps
	log    zerolog.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithRunner overrides the command runner.
func WithRunner(r Runner) Option {
	return func(i *Installer) {
		if r != nil {
			i.runner = r
		}
	}
}

// WithLogger sets the installer logger.
func WithLogger(l zerolog.Logger) Option {
	return func(i *Installer) {
		i.log = l
	}
}

// New returns an Installer.
func New(opts ...Option) *Installer {
	i := &Installer{
		runner: ExecRunner{},
		fs: fileOps{
			rename:    os.Rename,
			removeAll: os.RemoveAll,
			stat:      os.Stat,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install extracts the plan's archive and swaps the bundle into place.
func (i *Installer) Install(ctx context.Context, plan Plan) error {
	staged := plan.StagedPath()
	log := i.log.With().Str("archive", plan.DownloadedFile).Str("app", plan.AppPath).Logger()

	if err := i.fs.removeAll(staged); err != nil {
		return appErrors.New(appErrors.CodeInstallError, "Cannot remove stale staged bundle", err)
	}

	log.Info().Msg("extracting update")
	if _, err := i.runner.Run(ctx, "ditto", "-x", "-k", plan.DownloadedFile, plan.CacheFolder); err != nil {
		return appErrors.New(appErrors.CodeExtractionError, "Error occurred while extracting archive", err)
	}
	if _, err := i.fs.stat(staged); err != nil {
		return appErrors.New(appErrors.CodeExtractionError, "Archive does not contain "+plan.BundleName, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	backup := plan.BackupPath()
	hasBackup, err := i.backup(plan.AppPath, backup)
	if err != nil {
		return appErrors.New(appErrors.CodeInstallError, "Cannot move installed application aside", err)
	}

	target := plan.TargetPath()
	if err := i.move(ctx, staged, target); err != nil {
		if hasBackup {
			if rerr := i.fs.rename(backup, plan.AppPath); rerr != nil {
				log.Error().Err(rerr).Str("backup", backup).Msg("restoring installed application failed")
				return appErrors.New(appErrors.CodeInstallError,
					"Cannot install update and restoring the previous version failed; it is kept at "+backup,
					errors.Join(err, rerr))
			}
		}
		return appErrors.New(appErrors.CodeInstallError, "Cannot install update", err)
	}

	if hasBackup {
		if err := i.fs.removeAll(backup); err != nil {
			log.Warn().Err(err).Str("backup", backup).Msg("removing backup failed")
		}
	}
	log.Info().Str("target", target).Msg("update installed")
	return nil
}

func (i *Installer) backup(appPath, backup string) (bool, error) {
	if _, err := i.fs.stat(appPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := i.fs.removeAll(backup); err != nil {
		return false, err
	}
	if err := i.fs.rename(appPath, backup); err != nil {
		return false, err
	}
	return true, nil
}

// move renames src to dst, falling back to mv when they sit on different
// volumes. dst must not exist.
func (i *Installer) move(ctx context.Context, src, dst string) error {
	if _, err := i.fs.stat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	err := i.fs.rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	i.log.Debug().Err(err).Msg("rename crosses volumes, retrying with mv")
	if _, mvErr := i.runner.Run(ctx, "mv", src, dst); mvErr != nil {
		return errors.Join(err, mvErr)
	}
	return nil
}
