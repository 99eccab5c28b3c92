package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// AppName names the per-user data and config directories.
const AppName = "openusage"

// Config represents the application configuration
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Plugins PluginsConfig `mapstructure:"plugins"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Host    HostConfig    `mapstructure:"host"`
	Log     LogConfig     `mapstructure:"log"`
}

// PathsConfig holds the directories plugins are discovered from
type PathsConfig struct {
	AppDataDir  string `mapstructure:"app_data_dir"` // Per-user data dir; plugins are installed under <dir>/plugins
	ResourceDir string `mapstructure:"resource_dir"` // Read-only dir holding bundled_plugins
}

// PluginsConfig holds discovery and installation settings
type PluginsConfig struct {
	DevOverride        bool `mapstructure:"dev_override"`        // Prefer ./plugins or ../plugins when present
	InstallParallelism int  `mapstructure:"install_parallelism"` // Concurrent top-level copies during install
}

// RuntimeConfig holds Lua runtime limits
type RuntimeConfig struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	CallStackSize   int           `mapstructure:"call_stack_size"`
	RegistryMaxSize int           `mapstructure:"registry_max_size"`
}

// HostConfig holds limits for host capabilities
type HostConfig struct {
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	MaxReadBytes int64         `mapstructure:"max_read_bytes"` // Upper bound for fs.readText and HTTP bodies
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// ValidLogLevels is the list of supported log levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	config := &Config{}

	// Set defaults
	setDefaults()

	// Unmarshal the config
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	// Expand paths
	if err := expandPaths(config); err != nil {
		return nil, errors.Wrap(err, "failed to expand paths")
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return config, nil
}

// ValidateLogLevel validates that a log level is supported.
func ValidateLogLevel(level string) error {
	for _, valid := range ValidLogLevels {
		if level == valid {
			return nil
		}
	}
	return ouerrors.NewConfigError("log.level", "must be one of: debug, info, warn, error")
}

// Validate validates the configuration and returns any validation errors.
func (c *Config) Validate() error {
	if c.Paths.AppDataDir == "" {
		return ouerrors.NewConfigError("paths.app_data_dir", "must not be empty")
	}
	if c.Plugins.InstallParallelism < 1 {
		return ouerrors.NewConfigError("plugins.install_parallelism", "must be at least 1")
	}
	if c.Runtime.CallTimeout <= 0 {
		return ouerrors.NewConfigError("runtime.call_timeout", "must be positive")
	}
	if c.Runtime.CallStackSize < 16 {
		return ouerrors.NewConfigError("runtime.call_stack_size", "must be at least 16")
	}
	if c.Runtime.RegistryMaxSize < 1024 {
		return ouerrors.NewConfigError("runtime.registry_max_size", "must be at least 1024")
	}
	if c.Host.HTTPTimeout <= 0 {
		return ouerrors.NewConfigError("host.http_timeout", "must be positive")
	}
	if c.Host.MaxReadBytes <= 0 {
		return ouerrors.NewConfigError("host.max_read_bytes", "must be positive")
	}
	return ValidateLogLevel(c.Log.Level)
}

// Settings returns the effective configuration as nested maps keyed like
// the config file, with durations rendered as strings.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"paths": map[string]any{
			"app_data_dir": c.Paths.AppDataDir,
			"resource_dir": c.Paths.ResourceDir,
		},
		"plugins": map[string]any{
			"dev_override":        c.Plugins.DevOverride,
			"install_parallelism": c.Plugins.InstallParallelism,
		},
		"runtime": map[string]any{
			"call_timeout":      c.Runtime.CallTimeout.String(),
			"call_stack_size":   c.Runtime.CallStackSize,
			"registry_max_size": c.Runtime.RegistryMaxSize,
		},
		"host": map[string]any{
			"http_timeout":   c.Host.HTTPTimeout.String(),
			"max_read_bytes": c.Host.MaxReadBytes,
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}
}

// DefaultAppDataDir returns the per-user data directory.
func DefaultAppDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fall back to current directory if home dir can't be determined
		homeDir = "."
	}
	return filepath.Join(homeDir, ".config", AppName)
}

// DefaultResourceDir returns the directory of the running executable.
func DefaultResourceDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// setDefaults sets default configuration values
func setDefaults() {
	// Path defaults
	viper.SetDefault("paths.app_data_dir", DefaultAppDataDir())
	viper.SetDefault("paths.resource_dir", DefaultResourceDir())

	// Plugin defaults
	viper.SetDefault("plugins.dev_override", true)
	viper.SetDefault("plugins.install_parallelism", 1)

	// Runtime defaults
	viper.SetDefault("runtime.call_timeout", 10*time.Second)
	viper.SetDefault("runtime.call_stack_size", 256)
	viper.SetDefault("runtime.registry_max_size", 256*1024)

	// Host defaults
	viper.SetDefault("host.http_timeout", 10*time.Second)
	viper.SetDefault("host.max_read_bytes", 1<<20)

	// Log defaults
	viper.SetDefault("log.level", "info")
}

// expandPaths expands ~ in paths
func expandPaths(config *Config) error {
	var err error

	config.Paths.AppDataDir, err = expandPath(config.Paths.AppDataDir)
	if err != nil {
		return err
	}

	config.Paths.ResourceDir, err = expandPath(config.Paths.ResourceDir)
	if err != nil {
		return err
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, path[1:]), nil
}
