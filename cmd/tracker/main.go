package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/shipment-tracker/internal/service_registry"
	"github.com/benmeehan/shipment-tracker/internal/utils"
	"github.com/benmeehan/shipment-tracker/pkg/file"
	"github.com/benmeehan/shipment-tracker/pkg/logger"
	"github.com/benmeehan/shipment-tracker/pkg/mqtt"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Bootstrap logger until the configured level is known
	log := logger.New(logger.Options{})

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log = logger.New(logger.Options{Level: config.Log.Level, Pretty: config.Log.Pretty})

	credential, err := config.StartupCredential(fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load startup credential")
	}
	if !credential.Complete() {
		log.Info().Msg("No startup credential configured, waiting for a subscriber to send one")
	}

	var mqttClient mqtt.MQTTClient
	if config.MQTT.Enabled {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttService := mqtt.NewMqttService(fileClient)
		if err := mqttService.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		defer mqttService.Disconnect(250)
		mqttClient = mqttService
	}

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, log)

	if err := serviceRegistry.RegisterServices(config, credential); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
}
