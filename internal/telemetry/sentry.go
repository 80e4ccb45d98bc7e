// Package telemetry reports errors to Sentry when a DSN is configured.
// Reporting is opt-in; without a DSN nothing leaves the host.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/logger"
	"github.com/yardwatch/yardwatch/internal/privacy"
)

var initialized atomic.Bool

// allowedExtra lists the event extra keys kept by the privacy filter.
var allowedExtra = map[string]bool{
	"error_type": true,
	"component":  true,
	"category":   true,
}

// InitSentry initializes the Sentry SDK and routes EnhancedError reports
// to it. It is a no-op when no DSN is set.
func InitSentry(settings *conf.TelemetrySettings, release string, log logger.Logger) error {
	if settings.SentryDSN == "" {
		log.Debug("sentry telemetry disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "yardwatch@" + release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)
	log.Info("sentry telemetry enabled", logger.String("release", release))
	return nil
}

// applyPrivacyFilters strips host identity and camera addresses from an
// event before it is sent.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// Flush waits for buffered events. It is a no-op when Sentry is disabled.
func Flush(timeout time.Duration) {
	if !initialized.Load() {
		return
	}
	sentry.Flush(timeout)
}
