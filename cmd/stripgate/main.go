// stripgate exposes Kasa smart power strips over an authenticated HTTP API.
//
// Every outlet command goes through a shared session cache and a retrying
// controller. Outcomes are optionally fanned out to an SQLite audit trail,
// MQTT, InfluxDB and WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/stripgate/internal/api"
	"github.com/nerrad567/stripgate/internal/audit"
	"github.com/nerrad567/stripgate/internal/infrastructure/config"
	"github.com/nerrad567/stripgate/internal/infrastructure/database"
	"github.com/nerrad567/stripgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/stripgate/internal/infrastructure/logging"
	"github.com/nerrad567/stripgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/stripgate/internal/kasa"
	"github.com/nerrad567/stripgate/internal/power"
	"github.com/nerrad567/stripgate/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path, used only when the file exists.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting stripgate",
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

	// Outlet control core
	client := kasa.NewClient(kasaConfig(cfg.Device))
	cache := power.NewSessionCache(power.NewKasaConnector(client))
	cache.SetCreateTimeout(cfg.Device.ConnectTimeout + cfg.Device.IOTimeout)
	cache.SetLogger(log.With("component", "session_cache"))

	controller := power.NewController(cache, controllerConfig(cfg.Device))
	controller.SetLogger(log.With("component", "controller"))

	// Audit trail (optional)
	var auditRepo audit.Repository
	if cfg.Audit.Enabled {
		db, openErr := database.Open(ctx, database.Config{
			Path:        cfg.Audit.Path,
			WALMode:     cfg.Audit.WALMode,
			BusyTimeout: cfg.Audit.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening audit database: %w", openErr)
		}
		defer func() {
			log.Info("closing audit database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing audit database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("audit database ready", "path", db.Path())

		repo := audit.NewSQLiteRepository(db.DB)
		recorder := audit.NewRecorder(repo)
		recorder.SetLogger(log.With("component", "audit"))

		recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
		go recorder.Run(recCtx)
		// Runs before the database is closed.
		defer func() {
			stopRecorder()
			<-recorder.Done()
		}()

		controller.AddObserver(recorder)
		auditRepo = repo
	} else {
		log.Info("audit trail disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		controller.AddObserver(&mqttStatePublisher{client: mqttClient})

		commands := &mqttCommandHandler{
			ctx:        ctx,
			controller: controller,
			client:     mqttClient,
			log:        log,
		}
		commandTopic := mqtt.Topics{}.AllOutletCommands()
		if subErr := mqttClient.Subscribe(commandTopic, byte(cfg.MQTT.QoS), commands.Handle); subErr != nil {
			return fmt.Errorf("subscribing to outlet commands: %w", subErr)
		}
		// Runs before MQTT is closed and the audit recorder stops.
		defer func() {
			if unsubErr := mqttClient.Unsubscribe(commandTopic); unsubErr != nil {
				log.Warn("unsubscribing from outlet commands failed", "error", unsubErr)
			}
			commands.Close()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		controller.AddObserver(&influxSwitchWriter{client: influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	// HTTP API + WebSocket hub
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	controller.AddObserver(hub)

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Controller: controller,
		AuditRepo:  auditRepo,
		Hub:        hub,
		Version:    version,
	})
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

	if err := healthCheck(ctx, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up", "sessions", controller.Sessions())
	// Deferred closes run in reverse order: API, InfluxDB, MQTT, audit.
	return nil
}

// kasaConfig maps device settings onto the strip client.
func kasaConfig(dev config.DeviceConfig) kasa.Config {
	return kasa.Config{
		Port:           dev.Port,
		ConnectTimeout: dev.ConnectTimeout,
		IOTimeout:      dev.IOTimeout,
	}
}

// controllerConfig maps device settings onto the controller's retry policy.
func controllerConfig(dev config.DeviceConfig) power.ControllerConfig {
	return power.ControllerConfig{
		Retry: power.RetryPolicy{
			MaxAttempts:    dev.Retry.MaxAttempts,
			Delay:          dev.Retry.Delay,
			AttemptTimeout: dev.AttemptTimeout,
		},
		RetryValidationErrors: dev.Retry.RetryValidationErrors,
	}
}

// getConfigPath returns the configuration file path.
// STRIPGATE_CONFIG wins; otherwise the default path is used if it exists,
// and no file at all if it does not.
func getConfigPath() string {
	if path := os.Getenv("STRIPGATE_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return defaultConfigPath
}

// healthCheck verifies the started components.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - server: Started API server
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
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
