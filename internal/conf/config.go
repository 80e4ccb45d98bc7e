// Package conf loads yardwatch settings from config.yaml, .env files and
// YARDWATCH_* environment variables using viper.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yardwatch/yardwatch/internal/logger"
)

// Settings is the root of the configuration tree.
type Settings struct {
	Main struct {
		Name string               `mapstructure:"name" yaml:"name"`
		Log  logger.LoggingConfig `mapstructure:"log" yaml:"log"`
	} `mapstructure:"main" yaml:"main"`

	Database    DatabaseSettings    `mapstructure:"database" yaml:"database"`
	Detection   DetectionSettings   `mapstructure:"detection" yaml:"detection"`
	Debounce    DebounceSettings    `mapstructure:"debounce" yaml:"debounce"`
	FrameSource FrameSourceSettings `mapstructure:"framesource" yaml:"framesource"`
	Inference   InferenceSettings   `mapstructure:"inference" yaml:"inference"`
	JobQueue    JobQueueSettings    `mapstructure:"jobqueue" yaml:"jobqueue"`
	StopSignal  StopSignalSettings  `mapstructure:"stopsignal" yaml:"stopsignal"`
	API         APISettings         `mapstructure:"api" yaml:"api"`
	Telemetry   TelemetrySettings   `mapstructure:"telemetry" yaml:"telemetry"`
	Notify      NotifySettings      `mapstructure:"notify" yaml:"notify"`
}

// DatabaseSettings selects and configures the relational store.
type DatabaseSettings struct {
	Type               string         `mapstructure:"type" yaml:"type"` // sqlite, mysql or postgres
	SQLite             SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL              MySQLConfig    `mapstructure:"mysql" yaml:"mysql"`
	Postgres           PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	SlowQueryThreshold time.Duration  `mapstructure:"slow_query_threshold" yaml:"slow_query_threshold"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MySQLConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DetectionSettings control the per-recording detection loop.
type DetectionSettings struct {
	TargetInterval     time.Duration     `mapstructure:"target_interval" yaml:"target_interval"`         // pacing target per iteration
	RetryBackoff       time.Duration     `mapstructure:"retry_backoff" yaml:"retry_backoff"`             // delay before a failed job is retried
	MaxRetries         int               `mapstructure:"max_retries" yaml:"max_retries"`
	FallbackConfidence float64           `mapstructure:"fallback_confidence" yaml:"fallback_confidence"` // used when no override is set
	ProximityThreshold float64           `mapstructure:"proximity_threshold" yaml:"proximity_threshold"` // pixels between box centers
	ProximityClasses   ProximityClasses  `mapstructure:"proximity_classes" yaml:"proximity_classes"`
	DefectClasses      []string          `mapstructure:"defect_classes" yaml:"defect_classes"`
	FallbackVideo      map[string]string `mapstructure:"fallback_video" yaml:"fallback_video"` // keyed by detection kind
	Annotate           bool              `mapstructure:"annotate" yaml:"annotate"`
	JPEGQuality        int               `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

type ProximityClasses struct {
	Subject string `mapstructure:"subject" yaml:"subject"`
	Hazard  string `mapstructure:"hazard" yaml:"hazard"`
}

// DebounceSettings configure duplicate incident suppression.
type DebounceSettings struct {
	Window     time.Duration `mapstructure:"window" yaml:"window"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`     // 0 means same as window
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries"` // 0 means unbounded
}

type FrameSourceSettings struct {
	FFmpegPath    string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	RTSPTransport string        `mapstructure:"rtsp_transport" yaml:"rtsp_transport"`
	Width         int           `mapstructure:"width" yaml:"width"`
	Height        int           `mapstructure:"height" yaml:"height"`
	FPS           int           `mapstructure:"fps" yaml:"fps"`
	OpenTimeout   time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
	Device        string        `mapstructure:"device" yaml:"device"`
}

type InferenceSettings struct {
	Threads        int     `mapstructure:"threads" yaml:"threads"` // 0 = auto
	CandidateFloor float64 `mapstructure:"candidate_floor" yaml:"candidate_floor"`
	IoUThreshold   float64 `mapstructure:"iou_threshold" yaml:"iou_threshold"`
	LabelsSuffix   string  `mapstructure:"labels_suffix" yaml:"labels_suffix"`
}

type JobQueueSettings struct {
	MaxJobs            int           `mapstructure:"max_jobs" yaml:"max_jobs"`
	ProcessingInterval time.Duration `mapstructure:"processing_interval" yaml:"processing_interval"`
}

type StopSignalSettings struct {
	Backend string     `mapstructure:"backend" yaml:"backend"` // memory or nats
	NATS    NATSConfig `mapstructure:"nats" yaml:"nats"`
}

type NATSConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Embedded bool   `mapstructure:"embedded" yaml:"embedded"`
	StoreDir string `mapstructure:"store_dir" yaml:"store_dir"`
}

type APISettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

type TelemetrySettings struct {
	Metrics   bool   `mapstructure:"metrics" yaml:"metrics"`
	SentryDSN string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
}

// NotifySettings configure incident notifications.
type NotifySettings struct {
	MQTT      MQTTSettings     `mapstructure:"mqtt" yaml:"mqtt"`
	Shoutrrr  ShoutrrrSettings `mapstructure:"shoutrrr" yaml:"shoutrrr"`
	RateLimit float64          `mapstructure:"rate_limit" yaml:"rate_limit"` // notifications per second
	Burst     int              `mapstructure:"burst" yaml:"burst"`
}

type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

type ShoutrrrSettings struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	URLs    []string `mapstructure:"urls" yaml:"urls"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env files, the config file and environment variables.
// An empty configFile searches the default paths and writes a default
// config.yaml when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if settings.Debounce.CacheTTL == 0 {
		settings.Debounce.CacheTTL = settings.Debounce.Window
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		viper.AddConfigPath(path)
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "yardwatch"))
	}
	return append(paths, "/etc/yardwatch")
}

// createDefaultConfig writes the current defaults to the user config directory.
func createDefaultConfig() error {
	paths := GetDefaultConfigPaths()
	configPath := filepath.Join(paths[len(paths)-2], "config.yaml")

	defaults := &Settings{}
	if err := viper.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default config: %w", err)
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the settings from the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // removed only on failure paths

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tmpName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
