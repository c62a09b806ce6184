package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/host"
)

type fakeResult struct {
	stderr string
	err    error
}

type fakeRunner struct {
	results map[string]fakeResult
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	if name != "which" || len(args) != 1 {
		return nil, nil, errors.New("unexpected command")
	}
	f.calls = append(f.calls, args[0])
	res, ok := f.results[args[0]]
	if !ok {
		return nil, nil, errors.New("exit status 1")
	}
	return []byte("/usr/bin/" + args[0] + "\n"), []byte(res.stderr), res.err
}

func TestIsCommandAvailable(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{
		"dpkg":  {},
		"noisy": {stderr: "which: warning\n"},
	}}
	p := New(WithRunner(runner), WithGOOS("linux"))
	ctx := context.Background()

	if !p.IsCommandAvailable(ctx, "dpkg") {
		t.Fatal("expected dpkg to be available")
	}
	if p.IsCommandAvailable(ctx, "rpm") {
		t.Fatal("expected rpm lookup failure to report unavailable")
	}
	if p.IsCommandAvailable(ctx, "noisy") {
		t.Fatal("expected stderr output to report unavailable")
	}
	if p.IsCommandAvailable(ctx, "  ") {
		t.Fatal("expected blank name to report unavailable")
	}
}

func TestSupportedLinuxPackageFormat(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		present []string
		want    PackageFormat
	}{
		{"deb only", "linux", []string{"dpkg"}, FormatDeb},
		{"rpm only", "linux", []string{"rpm"}, FormatRPM},
		{"both prefers deb", "linux", []string{"dpkg", "rpm"}, FormatDeb},
		{"neither", "linux", nil, FormatNone},
		{"not linux", "darwin", []string{"dpkg", "rpm"}, FormatNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := map[string]fakeResult{}
			for _, name := range tt.present {
				results[name] = fakeResult{}
			}
			p := New(WithRunner(&fakeRunner{results: results}), WithGOOS(tt.goos))
			if got := p.SupportedLinuxPackageFormat(context.Background()); got != tt.want {
				t.Fatalf("SupportedLinuxPackageFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSupportedLinuxPackageFormatSkipsRPMWhenDebFound(t *testing.T) {
	runner := &fakeRunner{results: map[string]fakeResult{"dpkg": {}, "rpm": {}}}
	p := New(WithRunner(runner), WithGOOS("linux"))
	_ = p.SupportedLinuxPackageFormat(context.Background())
	if len(runner.calls) != 1 || runner.calls[0] != "dpkg" {
		t.Fatalf("expected only dpkg probe, got %v", runner.calls)
	}
}

func TestDescribeHost(t *testing.T) {
	p := New(WithGOOS("linux"))
	p.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{
			Hostname:        "box",
			OS:              "linux",
			Platform:        "ubuntu",
			PlatformFamily:  "debian",
			PlatformVersion: "24.04",
			KernelArch:      "x86_64",
		}, nil
	}
	h, err := p.DescribeHost(context.Background())
	if err != nil {
		t.Fatalf("DescribeHost error: %v", err)
	}
	if h.Family != "debian" || h.Platform != "ubuntu" {
		t.Fatalf("unexpected host %+v", h)
	}
	if got := h.String(); got != "ubuntu 24.04 x86_64 (debian)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestDescribeHostError(t *testing.T) {
	p := New(WithGOOS("darwin"))
	p.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return nil, errors.New("no sysctl")
	}
	h, err := p.DescribeHost(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if h.OS != "darwin" || h.String() != "darwin" {
		t.Fatalf("expected fallback host, got %+v", h)
	}
}
