package notify

import (
	"fmt"
	"time"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
)

const shoutrrrTimeout = 10 * time.Second

// FromSettings builds the configured receivers. With nothing enabled the
// returned Multi is a no-op.
func FromSettings(settings *conf.NotifySettings, log logger.Logger) (*Multi, error) {
	if log == nil {
		log = logger.Global().Module("notify")
	}
	var notifiers []Notifier
	if settings.MQTT.Enabled {
		m, err := NewMQTTNotifier(&settings.MQTT, log.Module("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
		notifiers = append(notifiers, m)
	}
	if settings.Shoutrrr.Enabled {
		s, err := NewShoutrrrNotifier(settings.Shoutrrr.URLs, shoutrrrTimeout)
		if err != nil {
			_ = NewMulti(0, 0, log, notifiers...).Close()
			return nil, fmt.Errorf("shoutrrr notifier: %w", err)
		}
		notifiers = append(notifiers, s)
	}
	return NewMulti(settings.RateLimit, settings.Burst, log, notifiers...), nil
}
