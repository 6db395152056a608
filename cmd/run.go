package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"casino/api"
	"casino/application"
	"casino/cache"
	"casino/config"
	"casino/database"
	"casino/domain/entities"
	"casino/domain/games"
	"casino/domain/interfaces"
	"casino/domain/services"
	"casino/events"
	"casino/infrastructure"
	"casino/infrastructure/observability"
	"casino/repository"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	eventStreamMaxAge = 7 * 24 * time.Hour
	shutdownTimeout   = 10 * time.Second
)

// ConfigureLogging applies the configured logrus level and format
func ConfigureLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// NewRegistry builds the rules of every game the service runs
func NewRegistry() (*games.Registry, error) {
	dice, err := games.NewDiceTotal(games.DefaultDiceTotalConfig())
	if err != nil {
		return nil, err
	}
	discs, err := games.NewDiscCount(games.DefaultDiscCountConfig())
	if err != nil {
		return nil, err
	}
	categories, err := games.NewCategoryMatch(games.DefaultCategoryMatchConfig())
	if err != nil {
		return nil, err
	}
	return games.NewRegistry(dice, discs, categories), nil
}

// Services is the wired domain layer
type Services struct {
	Registry *games.Registry
	Ledger   *services.Ledger
	Jackpots *services.JackpotEngine
	Rooms    *services.RoomManager
	Engine   *services.RoundEngine
}

// NewServices wires the ledger, jackpot, rooms and round engine over one
// unit of work factory
func NewServices(cfg *config.Config, uowFactory interfaces.UnitOfWorkFactory, redisClient *redis.Client, metrics interfaces.MetricsRecorder) (*Services, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build game registry: %w", err)
	}

	var balanceCache interfaces.BalanceCache = cache.Noop{}
	var poolCache interfaces.JackpotCache = cache.Noop{}
	if redisClient != nil {
		redisCache := cache.NewRedisCache(redisClient)
		balanceCache = redisCache
		poolCache = redisCache
	}

	ledger := services.NewLedger(uowFactory, balanceCache, metrics)

	jackpots := services.NewJackpotEngine(uowFactory, ledger, poolCache, metrics, services.NewJackpotRoller(cfg.JackpotRollMode))
	for _, rules := range registry.All() {
		if err := jackpots.Register(rules.ID(), entities.DefaultJackpotConfig()); err != nil {
			return nil, fmt.Errorf("failed to register jackpot for %s: %w", rules.ID(), err)
		}
	}

	rooms := services.NewRoomManager(ledger, registry, cfg.RoomJoinBalanceMultiplier)

	engine := services.NewRoundEngine(uowFactory, ledger, jackpots, registry, rooms, metrics, services.EngineConfig{
		BetCooldown: time.Duration(cfg.BetCooldownMillis) * time.Millisecond,
		HistorySize: cfg.TaiXiuHistorySize,
	})

	return &Services{
		Registry: registry,
		Ledger:   ledger,
		Jackpots: jackpots,
		Rooms:    rooms,
		Engine:   engine,
	}, nil
}

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)
	log.WithField("environment", cfg.Environment).Info("Starting casino round engine")

	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrationsWithURL(cfg.GetDatabaseURL()); err != nil {
		return err
	}
	log.Info("Database ready")

	redisClient := cache.Connect(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewBus()
	var emitter events.Emitter = eventBus

	var natsClient *infrastructure.NATSClient
	if cfg.NATSEnabled() {
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers, cfg.OTelServiceName)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		publisher := infrastructure.NewNATSEventPublisher(natsClient, infrastructure.NewEventSubjectMapper(), eventBus, cfg.OTelServiceName, metrics)
		if err := publisher.EnsureEventStream(natsClient, eventStreamMaxAge); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		emitter = publisher
		log.Info("Forwarding events to NATS")
	} else {
		log.Info("NATS not configured, events stay in process")
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, emitter)
	svc, err := NewServices(cfg, uowFactory, redisClient, metrics)
	if err != nil {
		return err
	}

	recovered, err := svc.Engine.RecoverUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover unfinished rounds: %w", err)
	}
	if recovered > 0 {
		log.WithField("rounds", recovered).Info("Recovered unfinished rounds")
	}
	if err := svc.Engine.WarmHistory(ctx); err != nil {
		log.WithError(err).Warn("Failed to warm result history")
	}

	handler := api.NewHandler(svc.Engine, svc.Ledger, svc.Rooms, svc.Jackpots)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		JWTSecret:      []byte(cfg.JWTSecret),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthListener, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCHealthAddr, err)
	}
	healthServer := api.NewHealthServer()

	serverErrs := make(chan error, 2)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	go func() {
		if err := healthServer.Serve(healthListener); err != nil {
			serverErrs <- err
		}
	}()

	stopScheduler := application.NewRoundScheduler(svc.Engine, application.TimelinesFor(svc.Registry)).Start(ctx)
	stopRetention := application.NewRetentionWorker(svc.Ledger, cfg.TransactionRetentionDays).Start(ctx)
	healthServer.SetServing(true)

	log.WithField("games", len(svc.Registry.All())).Info("Round engine is running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrs:
		log.WithError(runErr).Error("Server stopped unexpectedly")
	}

	log.Info("Shutting down...")
	healthServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown failed")
	}
	stopScheduler()
	stopRetention()

	if err := svc.Engine.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to close live rounds")
	}
	healthServer.Stop()

	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Metrics shutdown failed")
	}

	log.Info("Shutdown completed")
	return runErr
}
