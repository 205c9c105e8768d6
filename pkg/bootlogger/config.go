package bootlogger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/android-debug-tools/bootlogger/pkg/filter"
	"github.com/android-debug-tools/bootlogger/pkg/kconfig"
	"github.com/android-debug-tools/bootlogger/pkg/sepolicy"
)

// Config holds the logger configuration, loaded from the command line,
// environment variables and an optional YAML file.
type Config struct {
	// LogDir is the parent directory for captured logs.
	LogDir string `json:"logDir"`

	// DirName is the subdirectory of LogDir that is wiped and refilled on every run.
	DirName string `json:"dirName"`

	// SystemMode keeps logging after boot until persist.ext.logdump.enabled=false.
	SystemMode bool `json:"systemMode" env:"LOGGER_MODE_SYSTEM"`

	// LogLevel is the log verbosity (0=info, 1=debug).
	LogLevel int `json:"logLevel" env:"LOG_LEVEL" envDefault:"0"`

	// MetricsBindAddress serves Prometheus metrics when set, e.g. ":8080".
	MetricsBindAddress string `json:"metricsBindAddress" env:"METRICS_BIND_ADDRESS"`

	// PollInterval is how often properties are polled while waiting.
	PollInterval metav1.Duration `json:"pollInterval" env:"POLL_INTERVAL" envDefault:"1s"`

	// KernelConfigPath is the gzip-compressed kernel config.
	KernelConfigPath string `json:"kernelConfigPath" env:"KERNEL_CONFIG_PATH" envDefault:"/proc/config.gz"`

	// ExcludedDomains hide matching lines from the avc filter.
	ExcludedDomains []string `json:"excludedDomains"`

	// SuppressedOperations are never emitted as allow rules.
	SuppressedOperations []string `json:"suppressedOperations"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:         metav1.Duration{Duration: time.Second},
		KernelConfigPath:     kconfig.DefaultPath,
		ExcludedDomains:      append([]string(nil), filter.DefaultExcludedDomains...),
		SuppressedOperations: append([]string(nil), sepolicy.DefaultSuppressed...),
	}
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// OutputDir is the directory captured logs are written to.
func (c Config) OutputDir() string {
	return filepath.Join(c.LogDir, c.DirName)
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.LogDir == "" {
		return errors.New("invalid empty string for log directory")
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval.Duration)
	}
	return nil
}

// FilterOptions returns the filter settings derived from the configuration.
func (c Config) FilterOptions() filter.Options {
	return filter.Options{
		ExcludedDomains:      c.ExcludedDomains,
		SuppressedOperations: c.SuppressedOperations,
	}
}
