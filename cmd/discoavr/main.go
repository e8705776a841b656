// DiscoAVR Core - AV Receiver Control Service
//
// This is the main entry point for the DiscoAVR Core application.
// DiscoAVR maintains a persistent telnet control session to a
// Denon/Marantz AV receiver and exposes it over:
//   - An authenticated REST API with a WebSocket state feed
//   - MQTT topics for home automation integration
//   - Optional InfluxDB metrics for volume/power dashboards
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/nerrad567/discoavr-core/migrations"

	"github.com/nerrad567/discoavr-core/internal/api"
	"github.com/nerrad567/discoavr-core/internal/avr"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/config"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/database"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/logging"
	"github.com/nerrad567/discoavr-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// mqttCommandWait is the pause between an MQTT-delivered command and
// its response drain.
const mqttCommandWait = 100 * time.Millisecond

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting DiscoAVR Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// State history repository
	history := avr.NewSQLiteStateHistory(db.DB)

	// Receiver controller
	controller := avr.NewController(avr.Config{
		Host:              cfg.AVR.Host,
		Port:              cfg.AVR.Port,
		ConnectTimeout:    cfg.AVR.ConnectTimeout,
		ReadTimeout:       cfg.AVR.ReadTimeout,
		MaxRetries:        cfg.AVR.MaxRetries,
		InitialRetryDelay: cfg.AVR.InitialRetryDelay,
		MaxRetryDelay:     cfg.AVR.MaxRetryDelay,
		PollInterval:      cfg.AVR.PollInterval,
		Simulate:          cfg.AVR.Simulate,
	}, nil, log)
	controller.SetHistory(history)
	defer func() {
		log.Info("disconnecting from receiver")
		controller.Disconnect()
	}()
	log.Info("receiver controller initialised",
		"host", cfg.AVR.Host,
		"port", cfg.AVR.Port,
		"simulate", cfg.AVR.Simulate,
	)

	// Connect to MQTT broker (optional)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(disconnectErr error) {
			log.Warn("MQTT disconnected", "error", disconnectErr)
		})

		if bridgeErr := startMQTTBridge(ctx, controller, mqttClient, byte(cfg.MQTT.QoS), log); bridgeErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", bridgeErr)
		}
		log.Info("MQTT bridge started", "command_topic", mqtt.Topics{}.AVRCommand())
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})

		controller.Subscribe(&influxStateWriter{client: influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connection lifecycle events fan out to MQTT and InfluxDB.
	topics := mqtt.Topics{}
	controller.SetOnConnectionEvent(func(event string, attempts int) {
		log.Info("receiver connection event", "event", event, "attempts", attempts)
		if mqttClient != nil {
			payload := fmt.Sprintf(`{"event":%q,"attempts":%d}`, event, attempts)
			if pubErr := mqttClient.Publish(topics.AVREvent(event), []byte(payload), byte(cfg.MQTT.QoS), false); pubErr != nil {
				log.Warn("failed to publish connection event", "error", pubErr)
			}
		}
		if influxClient != nil {
			influxClient.WriteConnectionEvent(event, attempts)
		}
	})

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Controller: controller,
		History:    history,
		DB:         db,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Kick off the receiver connection in the background so a powered-off
	// receiver does not block startup.
	if cfg.AVR.AutoConnect {
		go func() {
			if connectErr := controller.Connect(ctx, true); connectErr != nil {
				log.Warn("initial receiver connection failed", "error", connectErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Receiver controller
	// 5. Database

	log.Info("DiscoAVR Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DISCOAVR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DISCOAVR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// startMQTTBridge wires the receiver controller to the MQTT surface:
//   - commands arriving on the command topic are executed
//   - state snapshots are published retained on the state topic
func startMQTTBridge(ctx context.Context, controller *avr.Controller, client *mqtt.Client, qos byte, log *logging.Logger) error {
	topics := mqtt.Topics{}

	// Retained state snapshots for dashboards and automations.
	controller.Subscribe(&mqttStatePublisher{client: client, log: log})

	// Inbound commands: either a command table name (power_on) or a raw
	// protocol string (PWON, or a newline-separated sequence).
	return client.Subscribe(topics.AVRCommand(), qos, func(_ string, payload []byte) error {
		command := strings.TrimSpace(string(payload))
		if command == "" {
			return nil
		}

		sequence := command
		if def, ok := avr.LookupCommand(command); ok {
			sequence = def.Sequence
		} else {
			validated, err := avr.ValidateSequence(command)
			if err != nil {
				log.Warn("rejected MQTT command", "command", command, "error", err)
				return nil
			}
			sequence = validated
		}

		resp, err := controller.SendAndWaitFrom(ctx, sequence, mqttCommandWait, avr.HistorySourceMQTT)
		if err != nil {
			log.Warn("MQTT command failed", "command", command, "error", err)
			return nil
		}
		log.Debug("MQTT command executed", "command", command, "response", resp)
		return nil
	})
}

// mqttStatePublisher publishes receiver state snapshots retained, so
// late subscribers immediately see the current state.
type mqttStatePublisher struct {
	client *mqtt.Client
	log    *logging.Logger
}

// OnStateChanged implements avr.StateListener.
func (p *mqttStatePublisher) OnStateChanged(state avr.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	if err := p.client.PublishRetained(mqtt.Topics{}.AVRState(), payload); err != nil {
		p.log.Warn("failed to publish state snapshot", "error", err)
	}
	return nil
}

// influxStateWriter records receiver state snapshots as time-series
// points for dashboards.
type influxStateWriter struct {
	client *influxdb.Client
}

// OnStateChanged implements avr.StateListener.
func (w *influxStateWriter) OnStateChanged(state avr.State) error {
	input := ""
	if state.InputSource != nil {
		input = *state.InputSource
	}
	surround := ""
	if state.SurroundMode != nil {
		surround = *state.SurroundMode
	}

	w.client.WriteReceiverState(state.Power, state.Volume, state.Muted, input, surround)
	w.client.WriteZone2State(state.Zone2Volume, state.Zone2Muted)
	return nil
}
