// Gray Logic Hub - Home Assistant entities as smart-home protocol devices
//
// This is the main entry point for the hub. It loads the entity state of a
// Home Assistant installation, maps selected entities onto protocol device
// representations and exposes them through bridges whose endpoints are
// published to an MQTT-attached protocol runtime.
//
// Usage:
//
//	grayhub                     run the hub
//	grayhub token -role admin   print an API token signed with the configured secret
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-hub/migrations"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/homeassistant"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/runtime/mqttruntime"
	"github.com/nerrad567/gray-logic-hub/internal/telemetry"
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

// shutdownTimeout bounds bridge teardown on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := bridge.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	if seedErr := seedBridges(ctx, cfg, repo, auditRepo, log); seedErr != nil {
		return seedErr
	}

	// Connect to MQTT broker
	topics := mqtt.NewTopics(cfg.Runtime.TopicPrefix)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
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
		"topic_prefix", topics.Prefix,
	)

	rt := mqttruntime.New(mqttClient, topics)
	rt.SetLogger(log.Component("runtime"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing bridge state")
		rt.Republish()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// WebSocket hub and telemetry both observe the manager
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	observers := bridge.Observers{hub}

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		influxClient.SetDefaultTags(map[string]string{"site": cfg.Site.ID})
		observers = append(observers, telemetry.NewRecorder(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Entity store fed by Home Assistant
	store := entity.NewStore()
	store.SetLogger(log.Component("entity"))

	haClient, err := homeassistant.Start(ctx, cfg.HomeAssistant, store)
	if err != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	defer func() {
		log.Info("closing Home Assistant connection")
		if closeErr := haClient.Close(); closeErr != nil {
			log.Error("error closing Home Assistant", "error", closeErr)
		}
	}()
	haClient.SetLogger(log.Component("homeassistant"))
	if haClient.Connected() {
		log.Info("Home Assistant connected", "url", cfg.HomeAssistant.URL, "entities", store.Len())
	} else {
		log.Warn("Home Assistant unreachable, bridges restore once connected", "url", cfg.HomeAssistant.URL)
	}

	manager, err := bridge.NewManager(bridge.ManagerOptions{
		Store:            store,
		Runtime:          rt,
		Platform:         haClient,
		Repository:       repo,
		Observer:         observers,
		Logger:           log.Component("bridge"),
		BuildConcurrency: cfg.Bridges.BuildConcurrency,
	})
	if err != nil {
		return fmt.Errorf("creating bridge manager: %w", err)
	}
	defer func() {
		log.Info("stopping bridges")
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := manager.Close(closeCtx); closeErr != nil {
			log.Error("error stopping bridges", "error", closeErr)
		}
	}()
	haClient.SetOnResync(manager.Resync)

	// Bridges map only entities the store knows, so restore after the
	// first sync.
	restore := func() error {
		if restoreErr := manager.Restore(ctx); restoreErr != nil {
			return fmt.Errorf("restoring bridges: %w", restoreErr)
		}
		totals := manager.Totals()
		log.Info("bridges restored", "bridges", totals.Bridges, "running", totals.Running, "devices", totals.Devices)
		return nil
	}
	if haClient.Connected() {
		if restoreErr := restore(); restoreErr != nil {
			return restoreErr
		}
	} else {
		go func() {
			if waitErr := haClient.WaitConnected(ctx); waitErr != nil {
				return
			}
			if restoreErr := restore(); restoreErr != nil {
				log.Error("deferred bridge restore failed", "error", restoreErr)
			}
		}()
	}

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Bridges:     manager,
		Platform:    haClient,
		MQTT:        mqttClient,
		Database:    db,
		Audit:       auditRepo,
		ExternalHub: hub,
		Version:     version,
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	go hub.Run(ctx)
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API, bridges, Home
	// Assistant, InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedBridges provisions bridge definitions from the seed file into an
// empty repository.
func seedBridges(ctx context.Context, cfg *config.Config, repo bridge.Repository, auditRepo audit.Repository, log *logging.Logger) error {
	if cfg.Bridges.SeedFile == "" {
		return nil
	}
	cfgs, err := bridge.LoadSeedFile(cfg.Bridges.SeedFile, cfg.Bridges.BasePort)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("no bridge seed file", "path", cfg.Bridges.SeedFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading bridge seed: %w", err)
	}
	n, err := bridge.SeedBridges(ctx, repo, cfgs, log.Logger)
	if err != nil {
		return fmt.Errorf("seeding bridges: %w", err)
	}
	for _, c := range cfgs[:n] {
		entry := &audit.Entry{
			Action:   audit.ActionCreate,
			BridgeID: c.ID,
			Source:   audit.SourceSeed,
			Details:  map[string]any{"name": c.Name, "port": c.Port, "file": cfg.Bridges.SeedFile},
		}
		if err := auditRepo.Record(ctx, entry); err != nil {
			log.Warn("audit record failed", "bridge_id", c.ID, "error", err)
		}
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// runToken implements the token subcommand.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "admin", "token subject")
	role := fs.String("role", string(auth.RoleAdmin), "token role (admin or viewer)")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := auth.IssueToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
