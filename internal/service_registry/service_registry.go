package service_registry

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/internal/registry"
	"github.com/benmeehan/shipment-tracker/internal/services"
	"github.com/benmeehan/shipment-tracker/internal/subscribers"
	"github.com/benmeehan/shipment-tracker/internal/utils"
	"github.com/benmeehan/shipment-tracker/pkg/file"
	"github.com/benmeehan/shipment-tracker/pkg/location"
	"github.com/benmeehan/shipment-tracker/pkg/mqtt"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services   *orderedmap.OrderedMap[string, registry.Service] // Keeps registration order
	mqttClient mqtt.MQTTClient                                  // nil when MQTT is disabled
	fileClient file.FileOperations
	console    io.Writer
	pool       *utils.WorkerPool
	Logger     zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   orderedmap.NewOrderedMap[string, registry.Service](),
		mqttClient: mqttClient,
		fileClient: fileClient,
		console:    os.Stdout,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services.Get(name); exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services.Set(name, svc)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Service returns a registered service by name.
func (sr *ServiceRegistry) Service(name string) (registry.Service, bool) {
	return sr.services.Get(name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	var started []registry.Service

	for el := sr.services.Front(); el != nil; el = el.Next() {
		sr.Logger.Info().Msgf("Starting service: %s", el.Key)
		if err := el.Value.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", el.Key)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", el.Key, err)
		}
		started = append(started, el.Value)
	}

	return nil
}

// StopServices stops all services in reverse order, then releases the
// broadcast workers.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for el := sr.services.Back(); el != nil; el = el.Prev() {
		if err := el.Value.Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", el.Key, err))
		}
	}
	if sr.pool != nil {
		sr.pool.Shutdown()
	}

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds the tracking engine from the configuration and
// registers its services: supervisor, websocket server, static server and,
// when MQTT is available, the status heartbeat.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, initial models.Credential) error {
	sr.pool = utils.NewWorkerPool(config.Broadcast.Workers)
	subs := subscribers.NewRegistry(sr.pool, sr.Logger.With().Str("service", "subscribers").Logger())

	sink, err := sr.buildSink(config, subs)
	if err != nil {
		return err
	}

	provider := location.NewSpeedyProvider(config.Tracker.Endpoint, config.Tracker.FetchTimeout)
	trackerLogger := sr.Logger.With().Str("service", "tracker").Logger()
	factory := func(credential models.Credential) *services.Tracker {
		return services.NewTracker(credential, config.Tracker.Interval, provider, sink, trackerLogger)
	}

	supervisor := services.NewSupervisor(
		factory,
		initial,
		*config.Tracker.RestartOnSameCredential,
		sr.Logger.With().Str("service", "supervisor").Logger(),
	)

	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() registry.Service
	}{
		{
			name:        "supervisor",
			enabled:     true,
			constructor: func() registry.Service { return supervisor },
		},
		{
			name:    "websocket",
			enabled: true,
			constructor: func() registry.Service {
				return services.NewWebsocketService(
					config.Server.WebsocketAddr,
					config.Server.WriteTimeout,
					subs,
					supervisor,
					sr.Logger.With().Str("service", "websocket").Logger(),
				)
			},
		},
		{
			name:    "static",
			enabled: true,
			constructor: func() registry.Service {
				return services.NewStaticService(
					config.Server.StaticAddr,
					config.Server.StaticDir,
					sr.fileClient,
					supervisor,
					subs,
					sr.Logger.With().Str("service", "static").Logger(),
				)
			},
		},
		{
			name:    "status",
			enabled: sr.mqttClient != nil,
			constructor: func() registry.Service {
				return services.NewStatusService(
					config.MQTT.StatusTopic,
					config.MQTT.StatusInterval,
					config.MQTT.QOS,
					sr.mqttClient,
					supervisor,
					subs,
					sr.Logger.With().Str("service", "status").Logger(),
				)
			},
		},
	}

	var registered []string
	for _, svc := range servicesInOrder {
		if !svc.enabled {
			sr.Logger.Debug().Str("service", svc.name).Msg("Service is disabled, skipping")
			continue
		}
		sr.RegisterService(svc.name, svc.constructor())
		registered = append(registered, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registered)
	return nil
}

// buildSink assembles the location sinks in delivery order: subscribers,
// MQTT, console.
func (sr *ServiceRegistry) buildSink(config *utils.Config, subs *subscribers.Registry) (services.LocationSink, error) {
	sinks := services.MultiSink{subs}

	if sr.mqttClient != nil {
		sinks = append(sinks, services.NewMqttSink(
			config.MQTT.LocationTopic,
			config.MQTT.QOS,
			sr.mqttClient,
			sr.Logger.With().Str("service", "mqtt_sink").Logger(),
		))
	}

	if config.Console.Enabled {
		var geocoder location.Geocoder
		if config.Console.MapsAPIKey != "" {
			g, err := location.NewGoogleGeocoder(config.Console.MapsAPIKey)
			if err != nil {
				sr.Logger.Error().Err(err).Msg("Failed to create Google geocoder")
				return nil, err
			}
			geocoder = g
		}
		sinks = append(sinks, services.NewConsoleSink(
			sr.console,
			geocoder,
			sr.Logger.With().Str("service", "console").Logger(),
		))
	}

	return sinks, nil
}
