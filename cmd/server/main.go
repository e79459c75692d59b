/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the BailAid case ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Open the configured store and load the ledger from it
  3. Build the settlement controller, advisory guard and event publishers
  4. Configure HTTP router, start the integrity scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database path for sqlite/bolt (overrides DB_PATH / BOLT_PATH)
           Use ":memory:" with sqlite for an in-memory database
  -seed    Scenario to load when the ledger is empty (e.g. nairobi-demo)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout); a contribution
     already charged on the rail finishes its commit
  3. Stop the scheduler, close brokers and the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/bailaid.db"

  # Run in memory with demo data
  STORE=memory ./server -seed=nairobi-demo

ENVIRONMENT:
  See config/config.go for every variable and its default.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bailaid/case-ledger/advisory"
	"github.com/bailaid/case-ledger/api"
	"github.com/bailaid/case-ledger/config"
	"github.com/bailaid/case-ledger/events"
	"github.com/bailaid/case-ledger/ledger"
	"github.com/bailaid/case-ledger/ledger/store"
	"github.com/bailaid/case-ledger/settlement"
	"github.com/bailaid/case-ledger/store/bolt"
	"github.com/bailaid/case-ledger/store/postgres"
	"github.com/bailaid/case-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite or Bolt database path")
	seed := flag.String("seed", "", "scenario to load into an empty ledger")
	flag.Parse()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
		cfg.BoltPath = *dbPath
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	caseStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	l, err := ledger.New(ctx, caseStore, ledger.WithLogger(log))
	if err != nil {
		log.Fatal("failed to load ledger", zap.Error(err))
	}
	log.Info("ledger loaded", zap.String("store", cfg.Store), zap.Int("cases", len(l.List())))

	// Redis (events + rate limit), optional
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = events.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	publisher, closeEvents := buildPublisher(cfg, rdb, log)
	defer closeEvents()

	// Domain services
	controller := settlement.NewController(l, settlement.SimulatedRail{Delay: cfg.RailDelay}, log)

	var oracle advisory.Oracle
	if cfg.GeminiAPIKey != "" {
		gemini, err := advisory.NewGeminiClient(ctx, cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey, log)
		if err != nil {
			log.Warn("legal guidance disabled, using fallbacks", zap.Error(err))
		} else {
			oracle = gemini
		}
	}
	guard := advisory.NewGuard(oracle, cfg.OracleTimeout, log)

	scheduler := api.NewIntegrityScheduler(l, cfg.AuditSchedule, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start integrity scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	handler := api.NewHandler(l, controller, guard, publisher, scheduler, log)
	if *seed != "" {
		if err := handler.SeedScenario(ctx, *seed); err != nil {
			log.Fatal("failed to seed scenario", zap.String("scenario", *seed), zap.Error(err))
		}
	}

	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSOrigins,
		Redis:           rdb,
		ContributeLimit: cfg.ContributionRateLimit,
		ContributeEvery: time.Minute,
	}, log)

	// Create server. WriteTimeout leaves room for the rail delay.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + cfg.RailDelay + cfg.OracleTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("starting API server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := zcfg.Build()
	if err != nil {
		log = zap.NewExample()
	}
	return log
}

// openStore returns the configured persistence backend and its closer.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (ledger.Store, func(), error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemory(), func() {}, nil

	case "bolt":
		s, err := bolt.New(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		s, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

// buildPublisher fans events out to every configured broker. The log
// publisher is always on so events are visible without any broker.
func buildPublisher(cfg config.Config, rdb *redis.Client, log *zap.Logger) (events.Publisher, func()) {
	pubs := events.Multi{events.NewLogPublisher(log)}
	closers := []func(){}

	if rdb != nil {
		pubs = append(pubs, events.NewRedisPublisher(rdb, log))
	}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, continuing without it", zap.Error(err))
		} else {
			pubs = append(pubs, amqpPub)
			closers = append(closers, amqpPub.Close)
		}
	}

	return pubs, func() {
		for _, c := range closers {
			c()
		}
	}
}
