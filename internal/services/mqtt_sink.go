package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// MqttSink republishes every location event to an MQTT topic.
type MqttSink struct {
	topic   string
	qos     int
	timeout time.Duration
	client  mqtt.MQTTClient
	logger  zerolog.Logger
}

// NewMqttSink creates a sink publishing to topic.
func NewMqttSink(topic string, qos int, client mqtt.MQTTClient, logger zerolog.Logger) *MqttSink {
	return &MqttSink{
		topic:   topic,
		qos:     qos,
		timeout: 5 * time.Second,
		client:  client,
		logger:  logger,
	}
}

// Publish never blocks the tracker for longer than the publish timeout, and
// returns as soon as ctx is cancelled.
func (m *MqttSink) Publish(ctx context.Context, event models.LocationEvent) {
	message := models.LocationMessage{
		Timestamp: event.ObservedAt,
		Latitude:  event.Coordinate.Latitude,
		Longitude: event.Coordinate.Longitude,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to serialize location message")
		return
	}

	token := m.client.Publish(m.topic, byte(m.qos), false, payload)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		m.logger.Debug().Str("topic", m.topic).Msg("Tracker cancelled while publishing location message")
		return
	case <-timer.C:
		m.logger.Warn().Str("topic", m.topic).Msg("Timed out publishing location message")
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Error().Err(err).Str("topic", m.topic).Msg("Failed to publish location message to MQTT")
		return
	}

	m.logger.Debug().Str("topic", m.topic).Msg("Location published successfully")
}
