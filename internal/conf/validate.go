// conf/validate.go contains validation functions for the configuration settings.
package conf

import (
	"fmt"
	"strings"
)

const (
	DatabaseSQLite   = "sqlite"
	DatabaseMySQL    = "mysql"
	DatabasePostgres = "postgres"

	StopBackendMemory = "memory"
	StopBackendNATS   = "nats"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateDatabaseSettings,
		validateDetectionSettings,
		validateDebounceSettings,
		validateFrameSourceSettings,
		validateInferenceSettings,
		validateJobQueueSettings,
		validateStopSignalSettings,
		validateNotifySettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *Settings) []string {
	var errs []string
	db := &s.Database
	switch db.Type {
	case DatabaseSQLite:
		if db.SQLite.Path == "" {
			errs = append(errs, "database.sqlite.path is required for sqlite")
		}
	case DatabaseMySQL:
		if db.MySQL.Host == "" || db.MySQL.Database == "" {
			errs = append(errs, "database.mysql.host and database.mysql.database are required for mysql")
		}
	case DatabasePostgres:
		if db.Postgres.Host == "" || db.Postgres.Database == "" {
			errs = append(errs, "database.postgres.host and database.postgres.database are required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.type %q is not supported", db.Type))
	}
	return errs
}

func validateDetectionSettings(s *Settings) []string {
	var errs []string
	d := &s.Detection
	if d.TargetInterval <= 0 {
		errs = append(errs, "detection.target_interval must be positive")
	}
	if d.RetryBackoff <= 0 {
		errs = append(errs, "detection.retry_backoff must be positive")
	}
	if d.MaxRetries < 0 {
		errs = append(errs, "detection.max_retries cannot be negative")
	}
	if d.FallbackConfidence < 0 || d.FallbackConfidence > 1 {
		errs = append(errs, "detection.fallback_confidence must be between 0 and 1")
	}
	if d.ProximityThreshold <= 0 {
		errs = append(errs, "detection.proximity_threshold must be positive")
	}
	if strings.TrimSpace(d.ProximityClasses.Subject) == "" || strings.TrimSpace(d.ProximityClasses.Hazard) == "" {
		errs = append(errs, "detection.proximity_classes needs both subject and hazard")
	}
	if len(d.DefectClasses) == 0 {
		errs = append(errs, "detection.defect_classes cannot be empty")
	}
	if d.JPEGQuality < 1 || d.JPEGQuality > 100 {
		errs = append(errs, "detection.jpeg_quality must be between 1 and 100")
	}
	return errs
}

func validateDebounceSettings(s *Settings) []string {
	var errs []string
	if s.Debounce.Window <= 0 {
		errs = append(errs, "debounce.window must be positive")
	}
	if s.Debounce.CacheTTL < 0 {
		errs = append(errs, "debounce.cache_ttl cannot be negative")
	}
	if s.Debounce.MaxEntries < 0 {
		errs = append(errs, "debounce.max_entries cannot be negative")
	}
	return errs
}

func validateFrameSourceSettings(s *Settings) []string {
	var errs []string
	f := &s.FrameSource
	if f.Width <= 0 || f.Height <= 0 {
		errs = append(errs, "framesource.width and framesource.height must be positive")
	}
	if f.FPS <= 0 {
		errs = append(errs, "framesource.fps must be positive")
	}
	if f.OpenTimeout <= 0 {
		errs = append(errs, "framesource.open_timeout must be positive")
	}
	if f.RTSPTransport != "tcp" && f.RTSPTransport != "udp" {
		errs = append(errs, "framesource.rtsp_transport must be tcp or udp")
	}
	if f.FFmpegPath == "" {
		errs = append(errs, "framesource.ffmpeg_path is required")
	}
	return errs
}

func validateInferenceSettings(s *Settings) []string {
	var errs []string
	i := &s.Inference
	if i.Threads < 0 {
		errs = append(errs, "inference.threads cannot be negative")
	}
	if i.CandidateFloor < 0 || i.CandidateFloor > 1 {
		errs = append(errs, "inference.candidate_floor must be between 0 and 1")
	}
	if i.IoUThreshold <= 0 || i.IoUThreshold > 1 {
		errs = append(errs, "inference.iou_threshold must be in (0, 1]")
	}
	if !strings.HasPrefix(i.LabelsSuffix, ".") {
		errs = append(errs, "inference.labels_suffix must start with a dot")
	}
	return errs
}

func validateJobQueueSettings(s *Settings) []string {
	var errs []string
	if s.JobQueue.MaxJobs <= 0 {
		errs = append(errs, "jobqueue.max_jobs must be positive")
	}
	if s.JobQueue.ProcessingInterval <= 0 {
		errs = append(errs, "jobqueue.processing_interval must be positive")
	}
	return errs
}

func validateStopSignalSettings(s *Settings) []string {
	var errs []string
	switch s.StopSignal.Backend {
	case StopBackendMemory:
	case StopBackendNATS:
		if s.StopSignal.NATS.URL == "" && !s.StopSignal.NATS.Embedded {
			errs = append(errs, "stopsignal.nats.url is required unless stopsignal.nats.embedded is set")
		}
		if s.StopSignal.NATS.Bucket == "" {
			errs = append(errs, "stopsignal.nats.bucket is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("stopsignal.backend %q is not supported", s.StopSignal.Backend))
	}
	return errs
}

func validateNotifySettings(s *Settings) []string {
	var errs []string
	n := &s.Notify
	if n.MQTT.Enabled && (n.MQTT.Broker == "" || n.MQTT.Topic == "") {
		errs = append(errs, "notify.mqtt.broker and notify.mqtt.topic are required when mqtt is enabled")
	}
	if n.Shoutrrr.Enabled && len(n.Shoutrrr.URLs) == 0 {
		errs = append(errs, "notify.shoutrrr.urls cannot be empty when shoutrrr is enabled")
	}
	if (n.MQTT.Enabled || n.Shoutrrr.Enabled) && (n.RateLimit <= 0 || n.Burst <= 0) {
		errs = append(errs, "notify.rate_limit and notify.burst must be positive")
	}
	return errs
}
