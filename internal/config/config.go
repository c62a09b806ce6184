package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyFeedOwner      = "feed.owner"
	KeyFeedRepo       = "feed.repo"
	KeyFeedPrerelease = "feed.prerelease"
	KeyFeedTimeout    = "feed.timeout"

	KeyAutoDownload  = "update.auto-download"
	KeyCheckInterval = "update.check-interval"
	KeyCacheDir      = "update.cache-dir"

	KeyLegacyAutoDownload         = "auto-download"          // Deprecated: use KeyAutoDownload.
	KeyLegacyCheckIntervalSeconds = "check-interval-seconds" // Deprecated: use KeyCheckInterval.

	KeyAppName = "install.app-name"

	KeyTransport       = "transport.kind"
	KeyMQTTBroker      = "mqtt.broker"
	KeyMQTTClientID    = "mqtt.client-id"
	KeyMQTTTopicPrefix = "mqtt.topic-prefix"
	KeyMQTTQoS         = "mqtt.qos"
	KeyMQTTCACert      = "mqtt.ca-certificate"

	KeySessionStore = "session.store"
	KeySessionPath  = "session.path"

	KeyGlamourStyle = "ui.glamour-style"
)

const (
	DefaultFeedOwner = "Cruzer-Blade"
	DefaultFeedRepo  = "g-assist-unofficial-temp-release"
	DefaultAppName   = ""
	// DefaultFeedTimeout bounds a single feed request.
	DefaultFeedTimeout = 10 * time.Second
	envPrefix          = "UK"
)

// Transport kinds accepted by KeyTransport.
const (
	TransportLocal = "local"
	TransportStdio = "stdio"
	TransportMQTT  = "mqtt"
)

// Session store kinds accepted by KeySessionStore.
const (
	SessionMemory = "memory"
	SessionSQLite = "sqlite"
)

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error

	// userConfigPathOverride is used by tests to override the user config path.
	// nolint:unused // Used in tests via reset()
	userConfigPathOverride string
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt fetches an integer configuration value, initializing on demand.
func GetInt(key string) int {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	applyLegacyUpdateConfig(v)

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, ".updatekit", "config.yaml"), nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, ".updatekit", "config.yaml")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyFeedOwner, DefaultFeedOwner)
	v.SetDefault(KeyFeedRepo, DefaultFeedRepo)
	v.SetDefault(KeyFeedPrerelease, false)
	v.SetDefault(KeyFeedTimeout, DefaultFeedTimeout)
	v.SetDefault(KeyAutoDownload, false)
	v.SetDefault(KeyCheckInterval, time.Duration(0))
	v.SetDefault(KeyCacheDir, "")
	v.SetDefault(KeyAppName, DefaultAppName)
	v.SetDefault(KeyTransport, TransportLocal)
	v.SetDefault(KeyMQTTBroker, "tcp://127.0.0.1:1883")
	v.SetDefault(KeyMQTTClientID, "updatekit")
	v.SetDefault(KeyMQTTTopicPrefix, "updatekit")
	v.SetDefault(KeyMQTTQoS, 1)
	v.SetDefault(KeyMQTTCACert, "")
	v.SetDefault(KeySessionStore, SessionMemory)
	v.SetDefault(KeySessionPath, "")
	v.SetDefault(KeyGlamourStyle, "auto")
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
//
//nolint:unused // Used in config_test.go
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
	userConfigPathOverride = ""
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithUserConfig(filepath.Join(tmp, "user.yaml")))
	return reset
}

// setUserConfigPathOverride sets the user config path for tests.
//
//nolint:unused // Used in config_test.go
func setUserConfigPathOverride(path string) {
	userConfigPathOverride = path
}

func applyLegacyUpdateConfig(v *viper.Viper) {
	if v == nil {
		return
	}
	if !hasExplicitKey(v, KeyAutoDownload) && v.IsSet(KeyLegacyAutoDownload) {
		v.Set(KeyAutoDownload, v.GetBool(KeyLegacyAutoDownload))
	}
	if !hasExplicitKey(v, KeyCheckInterval) && v.IsSet(KeyLegacyCheckIntervalSeconds) {
		v.Set(KeyCheckInterval, secondsToDuration(v.GetInt(KeyLegacyCheckIntervalSeconds)))
	}
}

func hasExplicitKey(v *viper.Viper, key string) bool {
	if v.InConfig(key) {
		return true
	}
	if _, ok := os.LookupEnv(envKey(key)); ok {
		return true
	}
	return false
}

func envKey(key string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return strings.ToUpper(envPrefix) + "_" + strings.ToUpper(replacer.Replace(key))
}

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// SaveAutoDownload persists the auto-download preference to the appropriate config file.
// If a project config (.updatekit/config.yaml) exists, it updates that file.
// Otherwise, it updates the user config (~/.updatekit/config.yaml).
// The user config directory is auto-created if needed, but project config
// directories are never auto-created.
func SaveAutoDownload(enabled bool) error {
	targetPath, err := findWritableConfigPath()
	if err != nil {
		return fmt.Errorf("find config path: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(targetPath)

	// Read existing config (if any) to preserve other settings
	_ = v.ReadInConfig()

	v.Set(KeyAutoDownload, enabled)

	dir := filepath.Dir(targetPath)
	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := v.WriteConfigAs(targetPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return Set(KeyAutoDownload, enabled)
}

// findWritableConfigPath determines which config file to write to.
// Returns project config path if it exists, otherwise user config path.
func findWritableConfigPath() (string, error) {
	wd, err := os.Getwd()
	if err == nil {
		projectPath, err := findProjectConfig(wd)
		if err == nil && projectPath != "" {
			return projectPath, nil
		}
	}

	if userConfigPathOverride != "" {
		return userConfigPathOverride, nil
	}
	return defaultUserConfigPath()
}
