package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/service_registry"
	"github.com/esp32-home/iot-gateway/internal/services"
	"github.com/esp32-home/iot-gateway/internal/store"
	transport "github.com/esp32-home/iot-gateway/internal/transport/http"
	"github.com/esp32-home/iot-gateway/internal/utils"
	"github.com/esp32-home/iot-gateway/pkg/file"
	"github.com/esp32-home/iot-gateway/pkg/mqtt"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Generate a unique MQTT Client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	log.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

	// Open the persistence sink. Without a configured driver the
	// gateway runs on an in-memory store and history does not survive
	// a restart.
	db, err := store.Open(config.Database.Driver, config.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	var historyStore store.ActionHistoryStore
	var sensorStore store.SensorStore
	if db != nil {
		historyStore = store.NewGormActionHistoryStore(db)
		sensorStore = store.NewGormSensorStore(db)
	} else {
		log.Warn().Msg("No database configured, using in-memory persistence")
		memory := store.NewMemoryStore()
		historyStore = memory
		sensorStore = memory.SensorSink()
	}

	// Core components. The router is created after the MQTT connection
	// but referenced by its reconnect hook, hence the indirection.
	var router *services.RouterService

	mqttClient := mqtt.NewMqttService(fileClient)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      config.MQTT.ClientID,
		Username:      config.MQTT.Username,
		Password:      config.MQTT.Password,
		CACertificate: config.MQTT.CACertificate,
		OnConnect: func() {
			if router != nil {
				router.Resubscribe()
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	devices := config.Gateway.Devices
	locks := services.NewDeviceLocks(devices)
	cache := services.NewStateCache(devices)
	fanout := services.NewFanout(log)

	liveness := services.NewLivenessService(config.Liveness.Timeout.Std(), config.Liveness.TickInterval.Std(), log)

	dispatcher := services.NewDispatcherService(
		config.Gateway.TopicPrefix,
		config.MQTT.QOS,
		config.Commands.AckTimeout.Std(),
		*config.Commands.Coalesce,
		mqttClient,
		cache,
		liveness,
		locks,
		fanout,
		log,
	)

	ack := services.NewAckService(cache, dispatcher, historyStore, fanout, locks, log)

	resync := services.NewResyncService(
		devices,
		config.Resync.PacingDelay.Std(),
		config.MQTT.QOS,
		mqttClient,
		dispatcher,
		cache,
		historyStore,
		locks,
		log,
	)
	liveness.SetReconnectHook(func() {
		resync.Resync(context.Background())
	})

	telemetry := services.NewTelemetryService(
		config.Telemetry.MinSaveInterval.Std(),
		config.Telemetry.TemperatureDelta,
		config.Telemetry.HumidityDelta,
		config.Telemetry.LightDelta,
		sensorStore,
		log,
	)

	router = services.NewRouterService(
		config.Gateway.TopicPrefix,
		config.MQTT.QOS,
		devices,
		config.Gateway.SensorNodeID,
		config.Liveness.Evidence,
		mqttClient,
		liveness,
		telemetry,
		ack,
		resync,
		log,
	)

	// Create a new service registry to manage lifecycle services
	serviceRegistry := service_registry.NewServiceRegistry(log)
	serviceRegistry.RegisterService("liveness", liveness)
	serviceRegistry.RegisterService("router", router)
	if config.HTTP.Enabled {
		httpServer := transport.NewServer(config.HTTP.ListenAddr, dispatcher, cache, liveness, fanout, log)
		serviceRegistry.RegisterService("http", httpServer)
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
		log.Error().Err(err).Msg("Failed to stop some services")
	}
	mqttClient.Disconnect(250)
}
