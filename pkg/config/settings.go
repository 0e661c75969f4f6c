package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is the optional application settings file.
var DefaultSettingsPath = filepath.Join(ConfigDir, "settings.yaml")

// DefaultAddress is the bind address offered for new sessions.
const DefaultAddress = "127.0.0.1"

// Context sources understood by Settings.ContextSource.
const (
	ContextSourceKubectl    = "kubectl"
	ContextSourceKubeconfig = "kubeconfig"
)

// Settings are application-wide knobs. Per-session options are derived from
// them when a session is created; nothing reads them as mutable globals.
type Settings struct {
	Kubectl        string        `yaml:"kubectl"`
	Catalog        string        `yaml:"catalog"`
	DefaultAddress string        `yaml:"default_address"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	Debug          bool          `yaml:"debug"`
	LogFile        string        `yaml:"log_file"`
	ContextSource  string        `yaml:"context_source"`
	Kubeconfig     string        `yaml:"kubeconfig"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Kubectl:        "kubectl",
		Catalog:        DefaultCatalogPath,
		DefaultAddress: DefaultAddress,
		StopTimeout:    5 * time.Second,
		ContextSource:  ContextSourceKubectl,
		LogFile:        defaultLogFile(),
	}
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "kportfwd.log"
	}
	return filepath.Join(dir, "kportfwd", "kportfwd.log")
}

// LoadSettings reads the settings file over the defaults. A missing file
// yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	expanded, err := expandHomeDir(path)
	if err != nil {
		return s, fmt.Errorf("failed to resolve settings path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if os.IsNotExist(err) {
		return s, nil
	} else if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the values that cannot be defaulted silently.
func (s Settings) Validate() error {
	if s.Kubectl == "" {
		return fmt.Errorf("kubectl must not be empty")
	}
	if s.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %s", s.StopTimeout)
	}
	switch s.ContextSource {
	case ContextSourceKubectl, ContextSourceKubeconfig:
	default:
		return fmt.Errorf("context_source must be %q or %q, got %q", ContextSourceKubectl, ContextSourceKubeconfig, s.ContextSource)
	}
	return nil
}
