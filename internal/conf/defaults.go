// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/yardwatch/yardwatch/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("main.name", "yardwatch")
	viper.SetDefault("main.log.default_level", logger.DefaultLogLevel)
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", logger.DefaultLogLevel)
	viper.SetDefault("main.log.file_output.enabled", false)
	viper.SetDefault("main.log.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("main.log.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("main.log.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("main.log.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	viper.SetDefault("main.log.file_output.compress", true)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "yardwatch.db")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.postgres.port", "5432")
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.slow_query_threshold", 200*time.Millisecond)

	viper.SetDefault("detection.target_interval", 100*time.Millisecond)
	viper.SetDefault("detection.retry_backoff", 10*time.Second)
	viper.SetDefault("detection.max_retries", 5)
	viper.SetDefault("detection.fallback_confidence", 0.75)
	viper.SetDefault("detection.proximity_threshold", 350.0)
	viper.SetDefault("detection.proximity_classes.subject", "person")
	viper.SetDefault("detection.proximity_classes.hazard", "forklift")
	viper.SetDefault("detection.defect_classes", []string{"pallet_bad", "Pallets_bad"})
	viper.SetDefault("detection.annotate", true)
	viper.SetDefault("detection.jpeg_quality", 90)

	viper.SetDefault("debounce.window", 60*time.Second)
	viper.SetDefault("debounce.cache_ttl", 0)
	viper.SetDefault("debounce.max_entries", 0)

	viper.SetDefault("framesource.ffmpeg_path", "ffmpeg")
	viper.SetDefault("framesource.rtsp_transport", "tcp")
	viper.SetDefault("framesource.width", 640)
	viper.SetDefault("framesource.height", 480)
	viper.SetDefault("framesource.fps", 10)
	viper.SetDefault("framesource.open_timeout", 10*time.Second)
	viper.SetDefault("framesource.device", "/dev/video0")

	viper.SetDefault("inference.threads", 0)
	viper.SetDefault("inference.candidate_floor", 0.25)
	viper.SetDefault("inference.iou_threshold", 0.7)
	viper.SetDefault("inference.labels_suffix", ".txt")

	viper.SetDefault("jobqueue.max_jobs", 100)
	viper.SetDefault("jobqueue.processing_interval", time.Second)

	viper.SetDefault("stopsignal.backend", "memory")
	viper.SetDefault("stopsignal.nats.url", "nats://127.0.0.1:4222")
	viper.SetDefault("stopsignal.nats.bucket", "yardwatch_stop")
	viper.SetDefault("stopsignal.nats.embedded", false)
	viper.SetDefault("stopsignal.nats.store_dir", "data/nats")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.listen", ":8080")

	viper.SetDefault("telemetry.metrics", true)
	viper.SetDefault("telemetry.sentry_dsn", "")

	viper.SetDefault("notify.mqtt.enabled", false)
	viper.SetDefault("notify.mqtt.topic", "yardwatch/incidents")
	viper.SetDefault("notify.mqtt.client_id", "yardwatch")
	viper.SetDefault("notify.shoutrrr.enabled", false)
	viper.SetDefault("notify.rate_limit", 1.0)
	viper.SetDefault("notify.burst", 5)
}
