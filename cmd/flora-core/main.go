// Flora Core - plant sensor state and broadcast server.
//
// This is the main entry point for the Flora Core server. It:
//   - accepts sensor readings over HTTP and, optionally, MQTT
//   - keeps the latest state of every device in memory
//   - pushes every accepted reading to connected viewers over WebSocket
//   - relays device commands to an actuator (log or MQTT)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/flora-core/internal/api"
	"github.com/nerrad567/flora-core/internal/broadcast"
	"github.com/nerrad567/flora-core/internal/command"
	"github.com/nerrad567/flora-core/internal/device"
	"github.com/nerrad567/flora-core/internal/infrastructure/config"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/metrics"
	"github.com/nerrad567/flora-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flora-core/internal/ingest"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Flora Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	registry := newRegistry(cfg.Registry)
	registry.SetLogger(log.Component("registry"))
	log.Info("device registry initialised",
		"mode", string(registry.Mode()),
		"devices", registry.Count(),
	)

	m := metrics.New(registry.Count)

	hub := broadcast.NewHub(broadcast.Options{
		WebSocket: cfg.WebSocket,
		Snapshots: registry,
		Logger:    log,
		Metrics:   m,
	})

	ingestHandler := ingest.NewHandler(ingest.Deps{
		Registry:  registry,
		Publisher: hub,
		Metrics:   m,
		Logger:    log,
	})

	var actuator command.Actuator = command.NewLogActuator(log)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if cfg.MQTT.Topics.Ingest {
			sub := ingest.NewMQTTSubscriber(mqttClient, ingestHandler, m, log)
			if subErr := sub.Start(ctx); subErr != nil {
				return fmt.Errorf("subscribing to MQTT ingest: %w", subErr)
			}
			log.Info("MQTT ingest enabled", "topic", mqtt.Topics{}.AllIngest())
		}
		if cfg.MQTT.Topics.Commands {
			actuator = command.NewMQTTActuator(mqttClient, mqttClient.QoS())
			log.Info("MQTT command relay enabled")
		}
	} else {
		log.Info("MQTT disabled")
	}

	relay := command.NewRelay(registry, actuator, m, log)

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Registry: registry,
		Hub:      hub,
		Ingest:   ingestHandler,
		Relay:    relay,
		Metrics:  m,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, server, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (disconnects viewers)
	// 2. MQTT (publishes offline status)

	log.Info("Flora Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLORA_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("FLORA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newRegistry builds the device registry from configuration.
func newRegistry(cfg config.RegistryConfig) *device.Registry {
	seeds := make([]device.Seed, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		seeds = append(seeds, device.Seed{ID: d.ID, Name: d.Name, Location: d.Location})
	}
	return device.NewRegistry(device.Mode(cfg.Mode), seeds)
}

// healthCheck verifies the server and, when enabled, the broker connection.
func healthCheck(ctx context.Context, server *api.Server, mqttClient *mqtt.Client) error {
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}
