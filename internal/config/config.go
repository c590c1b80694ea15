// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned when uploading is enabled but the Immich
// server URL or API key is not configured.
var ErrMissingCredentials = errors.New("IMMICH_SERVER_URL and IMMICH_API_KEY must be set to upload")

// Config holds all application configuration. It is loaded once at start
// and passed down read-only.
type Config struct {
	Immich  ImmichConfig `mapstructure:"immich"`
	Tools   ToolsConfig  `mapstructure:"tools"`
	Steam   SteamConfig  `mapstructure:"steam"`
	PS5     FolderConfig `mapstructure:"ps5"`
	Switch2 FolderConfig `mapstructure:"switch2"`
	Cursor  CursorConfig `mapstructure:"cursor"`
	Log     LogConfig    `mapstructure:"log"`
	Watch   WatchConfig  `mapstructure:"watch"`

	// StateDir holds the tracking files and the game name cache.
	StateDir string `mapstructure:"state_dir"`
}

// ImmichConfig configures uploads.
type ImmichConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ToolsConfig locates and bounds the external tools.
type ToolsConfig struct {
	// ExiftoolPath is the directory containing the exiftool binary. Empty
	// means exiftool is looked up on PATH.
	ExiftoolPath    string        `mapstructure:"exiftool_path"`
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	ExiftoolTimeout time.Duration `mapstructure:"exiftool_timeout"`
	FFmpegTimeout   time.Duration `mapstructure:"ffmpeg_timeout"`
	RemuxTimeout    time.Duration `mapstructure:"remux_timeout"`
	// TempDir receives intermediate files. Empty means the OS default.
	TempDir string `mapstructure:"temp_dir"`
}

// SteamConfig locates the Steam library.
type SteamConfig struct {
	// Dir is the Steam install directory.
	Dir string `mapstructure:"dir"`
	// AccountID overrides detection from loginusers.vdf.
	AccountID    string  `mapstructure:"account_id"`
	Output       string  `mapstructure:"output"`
	ResolveNames bool    `mapstructure:"resolve_names"`
	ResolverRPS  float64 `mapstructure:"resolver_rps"`
}

// FolderConfig configures a collector that walks a copied-off album.
type FolderConfig struct {
	Source string `mapstructure:"source"`
	Output string `mapstructure:"output"`
}

// CursorConfig selects the tracking store.
type CursorConfig struct {
	// Backend is "json" (one file per platform) or "sqlite".
	Backend string `mapstructure:"backend"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Immich: ImmichConfig{Timeout: 30 * time.Second},
		Tools: ToolsConfig{
			FFmpegPath:      "ffmpeg",
			ExiftoolTimeout: 60 * time.Second,
			FFmpegTimeout:   120 * time.Second,
			RemuxTimeout:    300 * time.Second,
		},
		Steam: SteamConfig{
			ResolveNames: true,
			ResolverRPS:  1,
		},
		Cursor: CursorConfig{Backend: "json"},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Watch:    WatchConfig{Debounce: 5 * time.Second},
		StateDir: defaultStateDir(),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "state", "gms")
}

// envBindings maps config keys to environment variables. The Immich, exiftool
// and console folder names are the ones earlier scripts used.
var envBindings = map[string]string{
	"immich.server_url":      "IMMICH_SERVER_URL",
	"immich.api_key":         "IMMICH_API_KEY",
	"immich.timeout":         "GMS_UPLOAD_TIMEOUT",
	"tools.exiftool_path":    "EXIFTOOL_PATH",
	"tools.ffmpeg_path":      "GMS_FFMPEG_PATH",
	"tools.exiftool_timeout": "GMS_EXIFTOOL_TIMEOUT",
	"tools.ffmpeg_timeout":   "GMS_FFMPEG_TIMEOUT",
	"tools.remux_timeout":    "GMS_REMUX_TIMEOUT",
	"tools.temp_dir":         "GMS_TEMP_DIR",
	"steam.dir":              "GMS_STEAM_DIR",
	"steam.account_id":       "GMS_STEAM_ACCOUNT_ID",
	"steam.output":           "GMS_STEAM_OUTPUT_PATH",
	"steam.resolve_names":    "GMS_RESOLVE_NAMES",
	"steam.resolver_rps":     "GMS_RESOLVER_RPS",
	"ps5.source":             "PS5_SOURCE_PATH",
	"ps5.output":             "PS5_OUTPUT_PATH",
	"switch2.source":         "SWITCH2_SOURCE_PATH",
	"switch2.output":         "SWITCH2_OUTPUT_PATH",
	"cursor.backend":         "GMS_CURSOR_BACKEND",
	"log.level":              "GMS_LOG_LEVEL",
	"log.format":             "GMS_LOG_FORMAT",
	"log.file":               "GMS_LOG_FILE",
	"log.max_size_mb":        "GMS_LOG_MAX_SIZE_MB",
	"log.max_backups":        "GMS_LOG_MAX_BACKUPS",
	"log.max_age_days":       "GMS_LOG_MAX_AGE_DAYS",
	"watch.debounce":         "GMS_WATCH_DEBOUNCE",
	"state_dir":              "GMS_STATE_DIR",
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config file. When empty, gms.{yaml,toml,json}
	// is searched in the working directory and ~/.config/gms.
	ConfigFile string
	// EnvFile is a dotenv file whose values apply below the config file.
	// Empty means ".env" in the working directory.
	EnvFile string
}

// Load loads configuration from environment variables, config file, .env
// file, and applies defaults.
// Priority: env vars > config file > .env > defaults
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := applyEnvFile(v, opts.EnvFile); err != nil {
		return nil, err
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("gms")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "gms"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]interface{}{
		"immich.timeout":         d.Immich.Timeout,
		"tools.exiftool_path":    d.Tools.ExiftoolPath,
		"tools.ffmpeg_path":      d.Tools.FFmpegPath,
		"tools.exiftool_timeout": d.Tools.ExiftoolTimeout,
		"tools.ffmpeg_timeout":   d.Tools.FFmpegTimeout,
		"tools.remux_timeout":    d.Tools.RemuxTimeout,
		"steam.resolve_names":    d.Steam.ResolveNames,
		"steam.resolver_rps":     d.Steam.ResolverRPS,
		"cursor.backend":         d.Cursor.Backend,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"log.max_size_mb":        d.Log.MaxSizeMB,
		"log.max_backups":        d.Log.MaxBackups,
		"log.max_age_days":       d.Log.MaxAgeDays,
		"watch.debounce":         d.Watch.Debounce,
		"state_dir":              d.StateDir,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// applyEnvFile layers a dotenv file above the defaults. Variables already
// present in the real environment win through BindEnv.
func applyEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	for key, env := range envBindings {
		if val := dv.GetString(strings.ToLower(env)); val != "" {
			v.SetDefault(key, val)
		}
	}
	return nil
}

func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.StateDir, &c.Steam.Dir, &c.Steam.Output, &c.PS5.Source, &c.PS5.Output,
		&c.Switch2.Source, &c.Switch2.Output, &c.Tools.ExiftoolPath, &c.Tools.TempDir, &c.Log.File,
	} {
		*p = expandHome(*p)
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.Immich.Timeout <= 0 {
		return fmt.Errorf("immich.timeout must be positive")
	}
	if c.Tools.ExiftoolTimeout <= 0 || c.Tools.FFmpegTimeout <= 0 || c.Tools.RemuxTimeout <= 0 {
		return fmt.Errorf("tool timeouts must be positive")
	}
	if c.Steam.ResolverRPS < 0 {
		return fmt.Errorf("steam.resolver_rps must be non-negative")
	}
	switch c.Cursor.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("cursor.backend must be json or sqlite, got %q", c.Cursor.Backend)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be non-negative")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must be set")
	}
	return nil
}

// RequireUpload returns ErrMissingCredentials unless both Immich settings
// are present.
func (c *Config) RequireUpload() error {
	if c.Immich.ServerURL == "" || c.Immich.APIKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// StatePath returns the location of a file inside StateDir.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}
