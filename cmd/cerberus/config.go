package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds the tool settings. The project document itself is separate
// and is read by the engine.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Project ProjectConfig `mapstructure:"project"`
	Output  OutputConfig  `mapstructure:"output"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProjectConfig locates the project document.
type ProjectConfig struct {
	File string `mapstructure:"file"`
}

// OutputConfig holds artifact output configuration.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`

	// Force lets generate replace an existing docker-compose.yaml.
	Force bool `mapstructure:"force"`

	// MaxParallelWrites bounds how many artifacts are written at once.
	MaxParallelWrites int `mapstructure:"max_parallel_writes"`
}

// =============================================================================
// Config Loading
// =============================================================================

// envFile is loaded before the environment is read, when present.
// Variables already set in the environment win.
const envFile = ".env"

// LoadConfig loads settings from defaults, an optional settings file, a
// .env file and CERBERUS_ environment variables, in increasing priority.
func LoadConfig(settingsPath string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("project.file", "config.toml")
	v.SetDefault("output.dir", "built")
	v.SetDefault("output.force", false)
	v.SetDefault("output.max_parallel_writes", 4)

	if settingsPath != "" {
		v.SetConfigFile(settingsPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing settings file falls back to defaults
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse settings file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CERBERUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err == nil {
		return godotenv.Load(path)
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format,
// writing to w.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
