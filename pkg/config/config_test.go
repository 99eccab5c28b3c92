package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

func validConfig() *Config {
	return &Config{
		Paths:   PathsConfig{AppDataDir: "/data", ResourceDir: "/res"},
		Plugins: PluginsConfig{DevOverride: true, InstallParallelism: 1},
		Runtime: RuntimeConfig{CallTimeout: time.Second, CallStackSize: 256, RegistryMaxSize: 4096},
		Host:    HostConfig{HTTPTimeout: time.Second, MaxReadBytes: 1024},
		Log:     LogConfig{Level: "info"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Not parallel - modifies global viper state
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.AppDataDir != DefaultAppDataDir() {
		t.Errorf("AppDataDir = %q, want %q", cfg.Paths.AppDataDir, DefaultAppDataDir())
	}
	if !cfg.Plugins.DevOverride {
		t.Error("DevOverride should default to true")
	}
	if cfg.Plugins.InstallParallelism != 1 {
		t.Errorf("InstallParallelism = %d, want 1", cfg.Plugins.InstallParallelism)
	}
	if cfg.Runtime.CallTimeout != 10*time.Second {
		t.Errorf("CallTimeout = %v, want 10s", cfg.Runtime.CallTimeout)
	}
	if cfg.Runtime.CallStackSize != 256 {
		t.Errorf("CallStackSize = %d, want 256", cfg.Runtime.CallStackSize)
	}
	if cfg.Runtime.RegistryMaxSize != 262144 {
		t.Errorf("RegistryMaxSize = %d, want 262144", cfg.Runtime.RegistryMaxSize)
	}
	if cfg.Host.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want 10s", cfg.Host.HTTPTimeout)
	}
	if cfg.Host.MaxReadBytes != 1<<20 {
		t.Errorf("MaxReadBytes = %d, want %d", cfg.Host.MaxReadBytes, 1<<20)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_FromTOMLFile(t *testing.T) {
	// Not parallel - modifies global viper state
	viper.Reset()
	t.Cleanup(viper.Reset)

	home := t.TempDir()
	t.Setenv("HOME", home)

	content := `[paths]
app_data_dir = "~/usage-data"

[plugins]
dev_override = false
install_parallelism = 4

[runtime]
call_timeout = "2s"

[log]
level = "debug"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "usage-data"); cfg.Paths.AppDataDir != want {
		t.Errorf("AppDataDir = %q, want %q", cfg.Paths.AppDataDir, want)
	}
	if cfg.Plugins.DevOverride {
		t.Error("DevOverride should be false")
	}
	if cfg.Plugins.InstallParallelism != 4 {
		t.Errorf("InstallParallelism = %d, want 4", cfg.Plugins.InstallParallelism)
	}
	if cfg.Runtime.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v, want 2s", cfg.Runtime.CallTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	// Not parallel - modifies global viper state
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("log.level", "loud")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for an unknown log level")
	} else if !ouerrors.IsConfigError(err) {
		t.Errorf("Load() error = %v, want a ConfigError", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty app data dir", mutate: func(c *Config) { c.Paths.AppDataDir = "" }, field: "paths.app_data_dir", wantErr: true},
		{name: "zero parallelism", mutate: func(c *Config) { c.Plugins.InstallParallelism = 0 }, field: "plugins.install_parallelism", wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Runtime.CallTimeout = -time.Second }, field: "runtime.call_timeout", wantErr: true},
		{name: "tiny call stack", mutate: func(c *Config) { c.Runtime.CallStackSize = 4 }, field: "runtime.call_stack_size", wantErr: true},
		{name: "tiny registry", mutate: func(c *Config) { c.Runtime.RegistryMaxSize = 10 }, field: "runtime.registry_max_size", wantErr: true},
		{name: "zero http timeout", mutate: func(c *Config) { c.Host.HTTPTimeout = 0 }, field: "host.http_timeout", wantErr: true},
		{name: "zero read limit", mutate: func(c *Config) { c.Host.MaxReadBytes = 0 }, field: "host.max_read_bytes", wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, field: "log.level", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var cfgErr *ouerrors.ConfigError
			if !ouerrors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %T, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()

	settings := validConfig().Settings()

	runtime, ok := settings["runtime"].(map[string]any)
	if !ok {
		t.Fatalf("runtime section = %T, want map", settings["runtime"])
	}
	if runtime["call_timeout"] != "1s" {
		t.Errorf("call_timeout = %v, want 1s", runtime["call_timeout"])
	}
	for _, section := range []string{"paths", "plugins", "runtime", "host", "log"} {
		if _, ok := settings[section]; !ok {
			t.Errorf("missing section %q", section)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "/abs/path", want: "/abs/path"},
		{in: "relative", want: "relative"},
		{in: "~", want: home},
		{in: "~/data", want: filepath.Join(home, "data")},
	}

	for _, tt := range tests {
		got, err := expandPath(tt.in)
		if err != nil {
			t.Fatalf("expandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
