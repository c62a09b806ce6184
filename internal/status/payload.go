package status

import (
	"math"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Release describes a release found on the feed. It is attached to
// UpdateAvailable, UpdateNotAvailable and UpdateDownloaded.
type Release struct {
	Version        string    `json:"version"`
	Name           string    `json:"releaseName,omitempty"`
	Notes          string    `json:"releaseNotes,omitempty"`
	ReleaseDate    time.Time `json:"releaseDate,omitempty"`
	URL            string    `json:"url,omitempty"`
	AssetName      string    `json:"assetName,omitempty"`
	AssetSize      int64     `json:"assetSize,omitempty"`
	DownloadedFile string    `json:"downloadedFile,omitempty"`
}

// DisplayVersion returns the version with a single leading "v". Versions
// that are not valid semver are shown as published.
func (r Release) DisplayVersion() string {
	raw := strings.TrimSpace(r.Version)
	if raw == "" {
		return ""
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return "v" + strings.TrimPrefix(raw, "v")
	}
	return "v" + v.String()
}

// Progress is attached to DownloadProgress.
type Progress struct {
	BytesPerSecond float64 `json:"bytesPerSecond"`
	Percent        float64 `json:"percent"`
	Transferred    int64   `json:"transferred"`
	Total          int64   `json:"total"`
}

// RoundedPercent returns the percentage rounded to the nearest integer and
// clamped to [0, 100].
func (p Progress) RoundedPercent() int {
	pct := math.Round(p.Percent)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// Fraction returns the progress as a value in [0, 1].
func (p Progress) Fraction() float64 {
	f := p.Percent / 100
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ErrorInfo is attached to Error.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// String returns the error message.
func (e ErrorInfo) String() string {
	return e.Message
}

// InstallInfo is attached to InstallingUpdate and describes the paths the
// manual install path is about to touch.
type InstallInfo struct {
	DownloadedFile string `json:"downloadedFile"`
	CacheFolder    string `json:"cacheFolder"`
	AppPath        string `json:"appPath"`
	AppPathParent  string `json:"appPathParent"`
}
