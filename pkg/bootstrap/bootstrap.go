package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"openusage.dev/openusage/pkg/config"
	"openusage.dev/openusage/pkg/hostapi"
	"openusage.dev/openusage/pkg/plugin"
	"openusage.dev/openusage/pkg/runtime"
)

// LocalConfigName is the per-directory config file merged over the user config.
const LocalConfigName = ".openusage.toml"

var (
	lastLoadedConfig  string
	lastLoadedVerbose bool
	loadedConfig      *config.Config
)

// PreParseGlobalFlags manually scans os.Args for --config and --verbose flags
// before the main Cobra execution. This is a bootstrap step for configuration.
// It stops scanning as soon as it hits a non-flag argument or the "--" marker.
func PreParseGlobalFlags(args []string) (string, bool) {
	var cfgFile string
	var verbose bool

	for i := 1; i < len(args); i++ {
		arg := args[i]

		// Stop parsing at the standard end-of-options marker
		if arg == "--" {
			break
		}

		// Stop parsing at the first non-flag argument (the subcommand)
		if !strings.HasPrefix(arg, "-") {
			break
		}

		switch {
		case arg == "--config" || arg == "-C":
			if i+1 < len(args) {
				cfgFile = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--config="):
			cfgFile = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-C="):
			cfgFile = strings.TrimPrefix(arg, "-C=")
		case strings.HasPrefix(arg, "-C") && len(arg) > 2:
			cfgFile = arg[2:]
		case arg == "--verbose" || arg == "-v":
			verbose = true
		}
	}

	return cfgFile, verbose
}

// DefaultConfigDir returns $HOME/.config/openusage.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".config", config.AppName), nil
}

// InitConfig reads in config file and ENV variables if set.
// It returns the loaded config and the actual verbosity state.
func InitConfig(cfgFile string, verbose bool) (*config.Config, bool, error) {
	// Skip if already loaded with same parameters (unless in test)
	if os.Getenv("GO_TEST") != "true" && loadedConfig != nil && cfgFile == lastLoadedConfig && verbose == lastLoadedVerbose {
		return loadedConfig, verbose, nil
	}

	// Reset Viper state to avoid carrying over stale settings from previous loads.
	viper.Reset()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, verbose, err
		}
		viper.AddConfigPath(dir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("OPENUSAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the default location is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, verbose, errors.Wrapf(err, "failed to read config file %s", cfgFile)
		}
	} else if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Load directory-local config (.openusage.toml) if present
	LoadLocalConfig(verbose)

	cfg, err := config.Load()
	if err != nil {
		return nil, verbose, err
	}

	// Update state
	lastLoadedConfig = cfgFile
	lastLoadedVerbose = verbose
	loadedConfig = cfg

	return cfg, verbose, nil
}

// LoadLocalConfig merges .openusage.toml from the current directory, so a
// plugin checkout can pin its own runtime limits during development.
func LoadLocalConfig(verbose bool) {
	configPath := LocalConfigName
	if _, err := os.Stat(configPath); err != nil {
		return
	}

	localViper := viper.New()
	localViper.SetConfigFile(configPath)

	if err := localViper.ReadInConfig(); err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: could not read local config %s: %v\n", configPath, err)
		}
		return
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Using local config: %s\n", configPath)
	}

	if err := viper.MergeConfigMap(localViper.AllSettings()); err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: could not merge local config: %v\n", err)
		}
	}
}

// ParseLevel maps a config log level to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w. Verbose forces debug level.
func NewLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := ParseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// NewEngine builds the discovery pipeline from configuration.
func NewEngine(cfg *config.Config, logger *slog.Logger) *plugin.Engine {
	engine := plugin.NewEngine(cfg.Paths.AppDataDir, cfg.Paths.ResourceDir, logger)
	engine.Resolver.DevOverride = cfg.Plugins.DevOverride
	engine.Installer.Parallelism = cfg.Plugins.InstallParallelism
	return engine
}

// NewSurface builds the host API surface from configuration.
func NewSurface(cfg *config.Config, logger *slog.Logger) *hostapi.Surface {
	return hostapi.NewSurface(
		hostapi.WithLogger(logger),
		hostapi.WithHTTPTimeout(cfg.Host.HTTPTimeout),
		hostapi.WithMaxReadBytes(cfg.Host.MaxReadBytes),
	)
}

// RuntimeOptions returns the plugin runtime limits from configuration.
func RuntimeOptions(cfg *config.Config, logger *slog.Logger) runtime.Options {
	return runtime.Options{
		CallTimeout:     cfg.Runtime.CallTimeout,
		CallStackSize:   cfg.Runtime.CallStackSize,
		RegistryMaxSize: cfg.Runtime.RegistryMaxSize,
		Logger:          logger,
	}
}

// Reset clears the cached configuration state.
func Reset() {
	lastLoadedConfig = ""
	lastLoadedVerbose = false
	loadedConfig = nil
}
