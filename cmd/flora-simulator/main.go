// Flora Simulator - sends simulated plant-sensor readings to Flora Core.
//
// Readings go to the HTTP ingest endpoint or, with -transport mqtt, to
// flora/ingest/{device_id}. In MQTT mode the simulator also listens on
// flora/command/+ and raises soil moisture when told to water.
//
// Usage:
//
//	flora-simulator [-config path] [-devices 3] [-interval 5s] [-transport http|mqtt]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/flora-core/internal/infrastructure/config"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flora-core/internal/simulator"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	serverURL  string
	transport  string
	devices    int
	prefix     string
	interval   time.Duration
	seed       int64
	retries    int
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("flora-simulator", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", os.Getenv("FLORA_CONFIG"), "path to config file")
	fs.StringVar(&o.serverURL, "server", "", "Flora Core base URL (overrides dashboard.server_url)")
	fs.StringVar(&o.transport, "transport", "http", "http or mqtt")
	fs.IntVar(&o.devices, "devices", 3, "number of simulated devices")
	fs.StringVar(&o.prefix, "prefix", "SIM_", "device id prefix")
	fs.DurationVar(&o.interval, "interval", 5*time.Second, "time between readings")
	fs.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed")
	fs.IntVar(&o.retries, "retries", 3, "HTTP retries per reading")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.transport != "http" && o.transport != "mqtt" {
		return o, fmt.Errorf("unknown transport %q", o.transport)
	}
	if o.devices < 1 {
		return o, fmt.Errorf("-devices must be at least 1")
	}
	if o.interval <= 0 {
		return o, fmt.Errorf("-interval must be positive")
	}
	return o, nil
}

func deviceIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%03d", prefix, i+1)
	}
	return ids
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.serverURL != "" {
		cfg.Dashboard.ServerURL = opts.serverURL
	}

	log := logging.New(cfg.Logging, version)

	var (
		sink       simulator.Sink
		mqttClient *mqtt.Client
	)
	switch opts.transport {
	case "mqtt":
		simCfg := cfg.MQTT
		simCfg.Broker.ClientID = cfg.MQTT.Broker.ClientID + "-simulator"
		mqttClient, err = mqtt.Connect(simCfg)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		sink = simulator.NewMQTTSink(mqttClient, mqttClient.QoS())
	default:
		sink = simulator.NewHTTPSink(cfg.Dashboard.ServerURL, cfg.Dashboard.RequestTimeoutDuration(), opts.retries)
	}

	sim, err := simulator.New(simulator.Options{
		DeviceIDs: deviceIDs(opts.prefix, opts.devices),
		Interval:  opts.interval,
		Seed:      opts.seed,
		Sink:      sink,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	if mqttClient != nil {
		if err := sim.SubscribeCommands(mqttClient); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
	}

	log.Info("starting Flora Simulator",
		"version", version,
		"transport", opts.transport,
		"devices", opts.devices,
		"seed", opts.seed,
	)
	return sim.Run(ctx)
}
