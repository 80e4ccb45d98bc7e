package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
)

const (
	mqttConnectTimeout    = 30 * time.Second
	mqttPublishTimeout    = 10 * time.Second
	mqttDisconnectQuiesce = 250 // ms
)

// MQTTNotifier publishes notifications as JSON to one topic.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	log    logger.Logger
}

// NewMQTTNotifier connects to the broker. paho keeps the connection alive
// and reconnects on its own.
func NewMQTTNotifier(settings *conf.MQTTSettings, log logger.Logger) (*MQTTNotifier, error) {
	if log == nil {
		log = logger.Global().Module("notify").Module("mqtt")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to mqtt broker", logger.String("broker", settings.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", logger.String("broker", settings.Broker), logger.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", settings.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", settings.Broker, err)
	}
	return newMQTTNotifier(client, settings.Topic, log), nil
}

func newMQTTNotifier(client mqtt.Client, topic string, log logger.Logger) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, log: log}
}

// Notify publishes n with QoS 0.
func (m *MQTTNotifier) Notify(ctx context.Context, n Notification) error {
	if !m.client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("mqtt: encode notification: %w", err)
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttPublishTimeout):
		return fmt.Errorf("mqtt: publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", m.topic, err)
	}
	m.log.Debug("incident published", logger.String("topic", m.topic), logger.Uint64("incident_id", uint64(n.IncidentID)))
	return nil
}

// Close disconnects from the broker.
func (m *MQTTNotifier) Close() error {
	m.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
