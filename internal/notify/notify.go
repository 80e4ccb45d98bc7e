// Package notify fans incident notifications out to MQTT and shoutrrr
// receivers, rate limited so a flapping camera cannot flood them.
package notify

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/logger"
)

// ErrRateLimited is returned when a notification is dropped by the limiter.
var ErrRateLimited = errors.NewStd("notification rate limit exceeded")

// Notification summarizes a persisted incident. Frames are never sent.
type Notification struct {
	IncidentID  uint      `json:"incident_id"`
	RecordingID uint      `json:"recording_id"`
	Kind        string    `json:"kind"`
	ClassName   string    `json:"class_name"`
	Confidence  float64   `json:"confidence"`
	BBox        string    `json:"bbox,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Title is a short subject line.
func (n Notification) Title() string {
	return fmt.Sprintf("yardwatch %s incident", n.Kind)
}

// Message is the human-readable body.
func (n Notification) Message() string {
	return fmt.Sprintf("Recording %d: %s detected at %s (incident %d)",
		n.RecordingID, n.ClassName, n.Timestamp.UTC().Format(time.RFC3339), n.IncidentID)
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi sends each notification to all receivers.
type Multi struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewMulti creates a fan-out notifier. limit <= 0 disables rate limiting.
func NewMulti(limit float64, burst int, log logger.Logger, notifiers ...Notifier) *Multi {
	if log == nil {
		log = logger.Global().Module("notify")
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return &Multi{notifiers: notifiers, limiter: lim, log: log}
}

// Len returns the number of receivers.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify delivers n to every receiver and joins their errors.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	if len(m.notifiers) == 0 {
		return nil
	}
	if !m.limiter.Allow() {
		m.log.Debug("notification dropped by rate limiter",
			logger.Uint64("incident_id", uint64(n.IncidentID)))
		return ErrRateLimited
	}

	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Component("notify").
		Category(errors.CategoryNotification).
		Context("receivers", len(m.notifiers)).
		Context("failed", len(errs)).
		Build()
}

// Close closes receivers holding connections.
func (m *Multi) Close() error {
	var errs []error
	for _, notifier := range m.notifiers {
		if c, ok := notifier.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
