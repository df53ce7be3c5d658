package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Output selects where playback is rendered.
const (
	OutputDevice = "device" // local sound card via oto
	OutputStream = "stream" // software clock, audible only through the monitors
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	// Server
	Port        int    `yaml:"port"`
	ProjectName string `yaml:"project"`

	// Editing surface
	CanvasWidth        float64 `yaml:"canvas_width"`        // logical pixel width of every track canvas
	SelectionThreshold float64 `yaml:"selection_threshold"` // min pixel span of an active selection

	// Playback
	Output           string        `yaml:"output"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	EndEpsilon       time.Duration `yaml:"end_epsilon"`
	MonitorBitrate   int           `yaml:"monitor_bitrate"`

	// Codec service
	FFmpegPath string `yaml:"ffmpeg"`
	TempDir    string `yaml:"temp_dir"`

	// Export
	ExportDir          string `yaml:"export_dir"`
	ExportNameTemplate string `yaml:"export_name"`

	// Persistence backend (optional)
	BackendURL       string `yaml:"backend_url"`
	BackendAPIKey    string `yaml:"backend_key"`
	BackendProjectID int64  `yaml:"backend_project"` // server-side project that owns the tracks

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:               8080,
		ProjectName:        "Untitled",
		CanvasWidth:        900,
		SelectionThreshold: 1.5,
		Output:             OutputDevice,
		ProgressInterval:   50 * time.Millisecond,
		EndEpsilon:         time.Millisecond,
		MonitorBitrate:     128000,
		FFmpegPath:         "ffmpeg",
		TempDir:            os.TempDir(),
		ExportDir:          "exports",
		ExportNameTemplate: "{{ .Name | snakecase }}",
		LogLevel:           "info",
	}
}

// Load reads configuration from environment variables with sane defaults.
// When SDT_CONFIG names a YAML file it is applied before the environment; a
// file that cannot be read or parsed is an error.
func Load() (Config, error) {
	if path := os.Getenv("SDT_CONFIG"); path != "" {
		cfg, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg, nil
}

// LoadFile reads a YAML config file over the defaults and then applies
// environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envInt("SDT_PORT", cfg.Port)
	cfg.ProjectName = envStr("SDT_PROJECT", cfg.ProjectName)

	cfg.CanvasWidth = envFloat("SDT_CANVAS_WIDTH", cfg.CanvasWidth)
	cfg.SelectionThreshold = envFloat("SDT_SELECTION_THRESHOLD", cfg.SelectionThreshold)

	cfg.Output = envStr("SDT_OUTPUT", cfg.Output)
	cfg.ProgressInterval = envMillis("SDT_PROGRESS_INTERVAL_MS", cfg.ProgressInterval)
	cfg.EndEpsilon = envMillis("SDT_END_EPSILON_MS", cfg.EndEpsilon)
	cfg.MonitorBitrate = envInt("SDT_MONITOR_BITRATE", cfg.MonitorBitrate)

	cfg.FFmpegPath = envStr("SDT_FFMPEG", cfg.FFmpegPath)
	cfg.TempDir = envStr("SDT_TEMP_DIR", cfg.TempDir)

	cfg.ExportDir = envStr("SDT_EXPORT_DIR", cfg.ExportDir)
	cfg.ExportNameTemplate = envStr("SDT_EXPORT_NAME", cfg.ExportNameTemplate)

	cfg.BackendURL = envStr("SDT_BACKEND_URL", cfg.BackendURL)
	cfg.BackendAPIKey = envStr("SDT_BACKEND_KEY", cfg.BackendAPIKey)
	cfg.BackendProjectID = envInt64("SDT_BACKEND_PROJECT", cfg.BackendProjectID)

	cfg.LogLevel = envStr("SDT_LOG_LEVEL", cfg.LogLevel)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
