// Package platform answers questions about the host the application runs on:
// which commands are on the PATH and which Linux package format the host
// prefers.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/host"
)

// PackageFormat names a Linux package format supported by the host.
type PackageFormat string

const (
	FormatNone PackageFormat = ""
	FormatDeb  PackageFormat = "deb"
	FormatRPM  PackageFormat = "rpm"
)

// Runner executes a command and returns its separate output streams.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	//nolint:gosec // G204: probe intentionally shells out to which
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Host summarises the operating system the process runs on.
type Host struct {
	Hostname string
	OS       string
	Platform string
	Family   string
	Version  string
	Arch     string
}

// String renders the host as a single line for logs and about screens.
func (h Host) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{h.Platform, h.Version, h.Arch} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return h.OS
	}
	if h.Family != "" && h.Family != h.Platform {
		parts = append(parts, "("+h.Family+")")
	}
	return strings.Join(parts, " ")
}

// Probe inspects the host. The zero value is not usable; call New.
type Probe struct {
	runner   Runner
	goos     string
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
}

// Option configures a Probe.
type Option func(*Probe)

// WithRunner overrides the command runner.
func WithRunner(r Runner) Option {
	return func(p *Probe) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithGOOS overrides the operating system the probe reports for.
func WithGOOS(goos string) Option {
	return func(p *Probe) {
		if goos != "" {
			p.goos = goos
		}
	}
}

// New constructs a Probe for the current host.
func New(opts ...Option) *Probe {
	p := &Probe{
		runner:   ExecRunner{},
		goos:     runtime.GOOS,
		hostInfo: host.InfoWithContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GOOS returns the operating system the probe reports for.
func (p *Probe) GOOS() string {
	return p.goos
}

// IsCommandAvailable reports whether name resolves on the PATH. A failed
// lookup or any output on stderr counts as unavailable.
func (p *Probe) IsCommandAvailable(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	_, stderr, err := p.runner.Run(ctx, "which", name)
	if err != nil {
		return false
	}
	return len(bytes.TrimSpace(stderr)) == 0
}

// SupportedLinuxPackageFormat returns the package format the host can
// install: deb when dpkg is present, otherwise rpm when rpm is present.
// It returns FormatNone off Linux or when neither is available.
func (p *Probe) SupportedLinuxPackageFormat(ctx context.Context) PackageFormat {
	if p.goos != "linux" {
		return FormatNone
	}
	if p.IsCommandAvailable(ctx, "dpkg") {
		return FormatDeb
	}
	if p.IsCommandAvailable(ctx, "rpm") {
		return FormatRPM
	}
	return FormatNone
}

// DescribeHost collects host information.
func (p *Probe) DescribeHost(ctx context.Context) (Host, error) {
	info, err := p.hostInfo(ctx)
	if err != nil {
		return Host{OS: p.goos}, fmt.Errorf("read host info: %w", err)
	}
	if info == nil {
		return Host{OS: p.goos}, nil
	}
	return Host{
		Hostname: info.Hostname,
		OS:       info.OS,
		Platform: info.Platform,
		Family:   info.PlatformFamily,
		Version:  info.PlatformVersion,
		Arch:     info.KernelArch,
	}, nil
}

var defaultProbe = New()

// IsCommandAvailable reports whether name resolves on the PATH of this host.
func IsCommandAvailable(ctx context.Context, name string) bool {
	return defaultProbe.IsCommandAvailable(ctx, name)
}

// SupportedLinuxPackageFormat returns the preferred package format of this host.
func SupportedLinuxPackageFormat(ctx context.Context) PackageFormat {
	return defaultProbe.SupportedLinuxPackageFormat(ctx)
}
