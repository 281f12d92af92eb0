// TermFleet Core - Attendance Terminal Fleet Engine
//
// This is the main entry point for the TermFleet Core service. It owns
// a fleet of biometric attendance terminals: one supervised session per
// device, live punch capture forwarded to the membership backend, and a
// concurrent command surface across the whole fleet.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/termfleet/termfleet-core/internal/terminal/sim"

	"github.com/termfleet/termfleet-core/internal/fleet"
	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
	"github.com/termfleet/termfleet-core/internal/infrastructure/influxdb"
	"github.com/termfleet/termfleet-core/internal/infrastructure/logging"
	"github.com/termfleet/termfleet-core/internal/infrastructure/mqtt"
	"github.com/termfleet/termfleet-core/internal/terminal"
	"github.com/termfleet/termfleet-core/internal/webhook"
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
	// Cancel the root context on interrupt signals for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes in one
// place.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TermFleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker for status reporting (optional)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Connect to InfluxDB for session metrics (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL)
	}

	// Event sink: decoded punches go to the membership backend.
	forwarder := webhook.New(cfg.Webhook.BackendURL, cfg.Webhook.Timeout(), log)
	if cfg.Webhook.BackendURL == "" {
		log.Warn("no webhook backend configured, live events will be dropped")
	}

	// Each device session gets its own driver instance through the
	// registered protocol driver.
	driverName := cfg.Service.Driver
	factory := func(device config.DeviceConfig) (fleet.Session, error) {
		driver, err := terminal.NewDriver(driverName, device)
		if err != nil {
			return nil, err
		}
		return terminal.NewLink(device, cfg.Session, driver, forwarder, log), nil
	}

	supervisor := fleet.NewSupervisor(cfg.Devices, cfg.Session, factory, log)
	if influxClient != nil {
		supervisor.SetMetrics(influxClient)
	}
	var reporter *fleet.StatusReporter
	if mqttClient != nil {
		reporter = fleet.NewStatusReporter(mqttClient, log)
		supervisor.SetReporter(reporter)
	}

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting fleet: %w", err)
	}

	// Fan one device_info out across the fleet so the startup log carries
	// each terminal's self-reported identity.
	dispatcher := fleet.NewDispatcher(supervisor, log)
	reportFleetInfo(ctx, dispatcher, log)

	log.Info("TermFleet Core running",
		"driver", driverName,
		"devices", len(cfg.Devices),
	)

	// Block until shutdown is requested.
	<-ctx.Done()
	log.Info("shutdown signal received")

	supervisor.Shutdown()
	if reporter != nil {
		reporter.ReportStopping()
	}
	log.Info("TermFleet Core stopped")
	return nil
}

// reportFleetInfo logs each terminal's self-reported identity. Devices
// that failed to connect at startup log a warning instead; the monitor
// loop keeps retrying them.
func reportFleetInfo(ctx context.Context, dispatcher *fleet.Dispatcher, log *logging.Logger) {
	for id, result := range dispatcher.DispatchAll(ctx, "device_info") {
		if result.Success {
			log.Info("device info",
				"device_id", id,
				"device", result.DeviceName,
				"info", result.Data,
			)
		} else {
			log.Warn("device info unavailable",
				"device_id", id,
				"device", result.DeviceName,
				"error", result.Error,
			)
		}
	}
}

// getConfigPath resolves the config file path from argv or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if path := os.Getenv("TERMFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
