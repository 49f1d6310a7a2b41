// Boardflow Core - kanban automation engine
//
// This is the main entry point. It loads configuration, opens the board
// database, subscribes to user-action events on the MQTT broker and runs
// matching automation rules, mention notifications and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/nerrad567/boardflow-core/migrations"

	"github.com/nerrad567/boardflow-core/internal/api"
	"github.com/nerrad567/boardflow-core/internal/audit"
	"github.com/nerrad567/boardflow-core/internal/automation"
	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/dedup"
	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/config"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/database"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/logging"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/boardflow-core/internal/notify"
	"github.com/nerrad567/boardflow-core/internal/transport"
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

	runner := run
	if len(os.Args) > 1 {
		var err error
		if runner, err = command(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	}

	if err := runner(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Boardflow Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
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

	boards := board.NewSQLiteRepository(db.DB)

	// Rule registry
	ruleRepo := automation.NewSQLiteRepository(db.DB)
	registry := automation.NewRegistry(ruleRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading rule registry: %w", refreshErr)
	}
	log.Info("rule registry initialised", "rules", registry.RuleCount())

	// InfluxDB (optional)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// MQTT
	topics := mqtt.NewTopics(cfg.Transport.TopicPrefix)
	mqttClient, err := mqtt.ConnectWithTopics(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", cfg.Transport.TopicPrefix,
	)

	// Mention dedup
	deduper, closeDedup, err := newDeduper(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating dedup cache: %w", err)
	}
	defer closeDedup()
	log.Info("dedup cache ready", "backend", cfg.Dedup.Backend, "ttl", cfg.GetDedupTTL())

	notifier := notify.NewNotifier(mqttClient, topics.MentionNotification(), deduper)
	// A notification that outlasts the dedup window is stale.
	notifier.SetTimeout(cfg.GetDedupTTL())
	notifier.SetLogger(log)

	publisher := transport.NewPublisher(mqttClient, topics, log)

	// Automation pipeline
	matcher := automation.NewMatcher(automation.Deps{Labels: boards, Members: boards})
	matcher.SetLogger(log)

	executor := automation.NewExecutor(boards, boards,
		int64(cfg.Automation.MaxConcurrentActions),
		cfg.GetActionTimeout(),
	)
	executor.SetLogger(log)

	processor := automation.NewProcessor(registry, matcher, executor)
	processor.SetLogger(log)
	processor.SetEventConcurrency(cfg.Automation.MaxConcurrentEvents)
	if cfg.Automation.RecordExecutions {
		processor.SetRecorder(ruleRepo)
	}
	if influxClient != nil {
		processor.SetMetrics(influxClient)
	}

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Rules:      registry,
		Executions: ruleRepo,
		Boards:     boards,
		Events:     publisher,
		Broker:     mqttClient,
		Audit:      audit.NewSQLiteRepository(db.DB),
		DB:         db.DB,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	processor.SetBroadcaster(apiServer.Hub())

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Event subscription
	subscriber := transport.NewSubscriber(mqttClient, topics, cfg.Transport.BufferSize, log)
	if startErr := subscriber.Start(ctx, dispatch(processor, notifier)); startErr != nil {
		return fmt.Errorf("subscribing to user actions: %w", startErr)
	}
	// Runs before the API and broker close: stop intake, then drain rule runs.
	defer func() {
		log.Info("stopping event subscription")
		subscriber.Stop()
		processor.Wait()
		notifier.Wait()
	}()
	log.Info("subscribed to user actions", "topic", topics.AllUserActions())

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// command resolves command-line arguments to the function main runs.
// With no arguments the service starts; "migrate down" rolls back the most
// recent schema migration and exits.
func command(args []string) (func(context.Context) error, error) {
	switch {
	case len(args) == 2 && args[0] == "migrate" && args[1] == "down":
		return migrateDown, nil
	default:
		return nil, fmt.Errorf("unknown command %q (usage: boardflow [migrate down])", strings.Join(args, " "))
	}
}

// migrateDown opens the configured database and rolls back one migration.
func migrateDown(ctx context.Context) error {
	log := logging.Default()
	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // process exits next

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("rolled back latest migration", "path", cfg.Database.Path)
	return nil
}

// dispatch fans one decoded event out to the rule processor and the
// mention notifier. Both run off the subscriber loop.
func dispatch(processor *automation.Processor, notifier *notify.Notifier) transport.Handler {
	return func(ctx context.Context, ev event.DomainEvent) {
		processor.Process(ctx, ev)
		notifier.Handle(ctx, ev)
	}
}

// loadConfig reads the file named by BOARDFLOW_CONFIG, or the default path.
// A missing default file falls back to built-in defaults; a missing
// explicit file is an error.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()

	if !explicit {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			log.Warn("no configuration file, using defaults", "path", path)
			cfg := config.Default()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("validating default config: %w", err)
			}
			return cfg, nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)
	return cfg, nil
}

// getConfigPath returns the configuration file path and whether it was set
// through BOARDFLOW_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("BOARDFLOW_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// newDeduper builds the configured dedup backend. The returned close func
// is always safe to call.
func newDeduper(ctx context.Context, cfg *config.Config) (dedup.Deduper, func(), error) {
	ttl := cfg.GetDedupTTL()

	switch cfg.Dedup.Backend {
	case "", "memory":
		return dedup.NewMemory(ttl), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d := dedup.NewRedis(client, ttl)
		if err := d.HealthCheck(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		return d, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
}

// healthCheck verifies the infrastructure connections. influxClient may be nil.
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
