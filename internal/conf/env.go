// env.go - environment variable and .env configuration
package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.log.default_level", "YARDWATCH_LOG_LEVEL", validateEnvLogLevel},

		{"database.type", "YARDWATCH_DB_TYPE", validateEnvDBType},
		{"database.sqlite.path", "YARDWATCH_SQLITE_PATH", nil},
		{"database.mysql.host", "YARDWATCH_MYSQL_HOST", nil},
		{"database.mysql.port", "YARDWATCH_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "YARDWATCH_MYSQL_USERNAME", nil},
		{"database.mysql.password", "YARDWATCH_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "YARDWATCH_MYSQL_DATABASE", nil},
		{"database.postgres.host", "YARDWATCH_POSTGRES_HOST", nil},
		{"database.postgres.port", "YARDWATCH_POSTGRES_PORT", validateEnvPort},
		{"database.postgres.username", "YARDWATCH_POSTGRES_USERNAME", nil},
		{"database.postgres.password", "YARDWATCH_POSTGRES_PASSWORD", nil},
		{"database.postgres.database", "YARDWATCH_POSTGRES_DATABASE", nil},

		{"detection.target_interval", "YARDWATCH_TARGET_INTERVAL", validateEnvDuration},
		{"detection.retry_backoff", "YARDWATCH_RETRY_BACKOFF", validateEnvDuration},
		{"debounce.window", "YARDWATCH_DEBOUNCE_WINDOW", validateEnvDuration},
		{"framesource.ffmpeg_path", "YARDWATCH_FFMPEG_PATH", nil},

		{"stopsignal.backend", "YARDWATCH_STOP_BACKEND", validateEnvStopBackend},
		{"stopsignal.nats.url", "YARDWATCH_NATS_URL", validateEnvURL},

		{"api.listen", "YARDWATCH_API_LISTEN", nil},
		{"telemetry.sentry_dsn", "YARDWATCH_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars binds the environment table and validates values that are set.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// LoadDotEnv loads variables from .env files without overriding the
// existing environment. Missing files are ignored. With no paths, ".env"
// in the working directory is used.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}

func validateEnvDBType(value string) error {
	switch value {
	case DatabaseSQLite, DatabaseMySQL, DatabasePostgres:
		return nil
	}
	return fmt.Errorf("must be one of %s, %s, %s", DatabaseSQLite, DatabaseMySQL, DatabasePostgres)
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 100ms or 10s")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvStopBackend(value string) error {
	switch value {
	case StopBackendMemory, StopBackendNATS:
		return nil
	}
	return fmt.Errorf("must be %s or %s", StopBackendMemory, StopBackendNATS)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	return nil
}
