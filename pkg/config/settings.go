package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// AppName names the xdg directories used for defaults
	AppName = "coverage-core"

	envPrefix    = "COVERAGE_"
	configEnvVar = "COVERAGE_CONFIG"
)

// Settings is the daemon configuration (servers, storage, telemetry).
type Settings struct {
	Log       LogSettings       `koanf:"log"`
	GRPC      GRPCSettings      `koanf:"grpc"`
	HTTP      HTTPSettings      `koanf:"http"`
	Store     StoreSettings     `koanf:"store"`
	Metrics   MetricsSettings   `koanf:"metrics"`
	Telemetry TelemetrySettings `koanf:"telemetry"`
	Notify    NotifySettings    `koanf:"notify"`
}

type LogSettings struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

type GRPCSettings struct {
	Addr string `koanf:"addr"`
}

type HTTPSettings struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type StoreSettings struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

type MetricsSettings struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

type TelemetrySettings struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type NotifySettings struct {
	MaxRetries int           `koanf:"max_retries"`
	Backoff    string        `koanf:"backoff"`
	BaseDelay  time.Duration `koanf:"base_delay"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Loader loads Settings from defaults, an optional YAML file and the environment
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithConfigPaths sets the candidate settings files, first match wins
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// NewLoader creates a settings loader that searches the working directory and
// the xdg config directory by default.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"coverage.yaml",
			filepath.Join(ConfigDir(), "coverage.yaml"),
		},
		envPrefix: envPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges, in increasing priority, defaults, the first settings file found
// and environment variables, then validates the result. A missing settings
// file is not an error.
func (l *Loader) Load() (*Settings, error) {
	if err := l.k.Load(confmap.Provider(defaultSettings(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := l.findConfigFile(); path != "" {
		if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var s Settings
	if err := l.k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

func (l *Loader) findConfigFile() string {
	if path := os.Getenv(configEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range l.configPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnv maps COVERAGE_SECTION_KEY to section.key; only the first underscore
// separates the section so keys such as max_retries survive.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.ProviderWithValue(l.envPrefix, ".", func(envKey, value string) (string, interface{}) {
		key := strings.ToLower(strings.TrimPrefix(envKey, l.envPrefix))
		if key == "config" {
			return "", nil
		}
		return strings.Replace(key, "_", ".", 1), value
	}), nil)
}

func defaultSettings() map[string]any {
	return map[string]any{
		"log.level":       "info",
		"log.format":      "text",
		"log.output":      "stdout",
		"log.file_path":   filepath.Join(StateDir(), "coverage.log"),
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		"grpc.addr": ":50051",

		"http.addr":             ":8080",
		"http.shutdown_timeout": 10 * time.Second,

		"store.enabled": true,
		"store.dir":     DataDir(),

		"metrics.enabled":   true,
		"metrics.namespace": "coverage",

		"telemetry.enabled":      false,
		"telemetry.endpoint":     "localhost:4317",
		"telemetry.service_name": AppName,
		"telemetry.sample_rate":  1.0,

		"notify.max_retries": 3,
		"notify.backoff":     "exponential",
		"notify.base_delay":  time.Second,
		"notify.timeout":     10 * time.Second,
	}
}

// Validate checks the merged settings
func (s *Settings) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[s.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", s.Log.Level)
	}
	if s.Log.Format != "json" && s.Log.Format != "text" {
		return fmt.Errorf("invalid log.format: %s (must be json or text)", s.Log.Format)
	}
	if s.Log.Output != "stdout" && s.Log.Output != "stderr" && s.Log.Output != "file" {
		return fmt.Errorf("invalid log.output: %s (must be stdout, stderr, or file)", s.Log.Output)
	}
	if s.HTTP.Addr == "" && s.GRPC.Addr == "" {
		return fmt.Errorf("at least one of http.addr or grpc.addr must be set")
	}
	if s.Store.Enabled && s.Store.Dir == "" {
		return fmt.Errorf("store.dir is required when the store is enabled")
	}
	if s.Telemetry.Enabled && s.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if s.Notify.MaxRetries < 0 {
		return fmt.Errorf("notify.max_retries cannot be negative, got %d", s.Notify.MaxRetries)
	}
	return nil
}

// ConfigDir is the default directory for settings files
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DataDir is the default directory for the results database
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir is the default directory for log files
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}
