package backend

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseVersion parses a semantic version with or without a leading "v".
func ParseVersion(s string) (*semver.Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty version string")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}
	return v, nil
}

// IsDevBuild reports whether version identifies an unreleased build that
// should never be offered updates.
func IsDevBuild(version string) bool {
	switch strings.TrimSpace(version) {
	case "", "dev", "development":
		return true
	}
	_, err := ParseVersion(version)
	return err != nil
}

// Newer reports whether latest is strictly newer than current. Prerelease
// versions sort below the matching release.
func Newer(current, latest string) (bool, error) {
	cur, err := ParseVersion(current)
	if err != nil {
		return false, fmt.Errorf("parse current version: %w", err)
	}
	lat, err := ParseVersion(latest)
	if err != nil {
		return false, fmt.Errorf("parse latest version: %w", err)
	}
	return lat.GreaterThan(cur), nil
}
