package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// EngineStatus is what the status heartbeat reports on.
type EngineStatus interface {
	State() string
	Current() (models.Credential, bool)
}

// SubscriberCounter reports the number of connected subscribers.
type SubscriberCounter interface {
	Count() int
}

// StatusService periodically publishes the engine status over MQTT.
type StatusService struct {
	PubTopic    string
	Interval    time.Duration
	QOS         int
	MqttClient  mqtt.MQTTClient
	Engine      EngineStatus
	Subscribers SubscriberCounter
	Logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatusService initializes a new StatusService.
func NewStatusService(pubTopic string, interval time.Duration, qos int, mqttClient mqtt.MQTTClient,
	engine EngineStatus, subs SubscriberCounter, logger zerolog.Logger) *StatusService {

	return &StatusService{
		PubTopic:    pubTopic,
		Interval:    interval,
		QOS:         qos,
		MqttClient:  mqttClient,
		Engine:      engine,
		Subscribers: subs,
		Logger:      logger,
	}
}

// Start launches the status loop in a separate goroutine.
func (h *StatusService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runStatusLoop()
	}()

	h.Logger.Info().Str("topic", h.PubTopic).Dur("interval", h.Interval).Msg("StatusService started successfully")
	return nil
}

// Stop gracefully stops the status service.
func (h *StatusService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("StatusService stopped successfully")
	return nil
}

func (h *StatusService) runStatusLoop() {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.publishStatus()
		case <-h.ctx.Done():
			h.Logger.Info().Msg("StatusService stopping gracefully")
			return
		}
	}
}

func (h *StatusService) publishStatus() {
	status := models.Status{
		Timestamp:   time.Now(),
		State:       h.Engine.State(),
		Subscribers: h.Subscribers.Count(),
	}
	if credential, ok := h.Engine.Current(); ok {
		status.Barcode = credential.Barcode
	}

	payload, err := json.Marshal(status)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to serialize status message")
		return
	}

	token := h.MqttClient.Publish(h.PubTopic, byte(h.QOS), false, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to publish status message")
	} else {
		h.Logger.Debug().Msg("Status published successfully")
	}
}
