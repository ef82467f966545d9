package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-engine/config"
	"github.com/Dosada05/tournament-engine/db"
	"github.com/Dosada05/tournament-engine/handlers"
	"github.com/Dosada05/tournament-engine/logging"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/realtime"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/routes"
	"github.com/Dosada05/tournament-engine/scoring"
	"github.com/Dosada05/tournament-engine/services"
	"github.com/Dosada05/tournament-engine/storage"
	"github.com/Dosada05/tournament-engine/tenancy"
	"github.com/go-chi/chi/v5"
	"github.com/gosimple/slug"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	flags := pflag.NewFlagSet("tournament-engine", pflag.ExitOnError)
	cfg.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Настройка логгера
	logger, err := logging.New(logging.Options{
		Format:     cfg.LogFormat,
		Level:      cfg.LogLevel,
		Dir:        cfg.LogDir,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("store", cfg.TenantStoreDriver),
		slog.String("relay", cfg.EventRelay),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Каталог арендаторов
	catalog, closeCatalog, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()

	connector, closeConnector, err := openConnector(cfg)
	if err != nil {
		return err
	}
	defer closeConnector()

	manager := tenancy.NewManager(catalog, connector, tenancy.Options{
		MaxTenants:    cfg.MaxTenants,
		IdleTTL:       cfg.TenantIdleTTL,
		SweepInterval: cfg.TenantSweepInterval,
	}, logger)
	if err := manager.Start(); err != nil {
		return fmt.Errorf("start tenant manager: %w", err)
	}
	logger.Info("tenant manager started", slog.Int("max_tenants", cfg.MaxTenants))

	// Инициализация WebSocket Hub
	hub := realtime.NewHub(logger)
	go hub.Run(ctx)
	logger.Info("WebSocket Hub started")

	broadcaster, closeRelay, err := openBroadcaster(ctx, cfg, hub, logger)
	if err != nil {
		return err
	}
	defer closeRelay()

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}

	defaultScoring, err := scoring.LoadConfig(cfg.ScoringConfigPath)
	if err != nil {
		return fmt.Errorf("load scoring config: %w", err)
	}

	// Инициализация сервисов
	effects := services.NewSideEffects(logger)
	leaderboardService := services.NewLeaderboardService(logger)
	matchService := services.NewMatchService(leaderboardService, broadcaster, history, effects, defaultScoring, logger)
	roomService := services.NewRoomService(defaultScoring, logger)
	logger.Info("Services initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Handlers{
		Match:       handlers.NewMatchHandler(matchService),
		Room:        handlers.NewRoomHandler(roomService),
		Leaderboard: handlers.NewLeaderboardHandler(leaderboardService),
		WebSocket:   handlers.NewWebSocketHandler(hub, cfg.CORSOrigins, logger),
		Health:      handlers.NewHealthHandler(manager),
	}, routes.Options{
		JWTSecret:   []byte(cfg.JWTSecretKey),
		BaseDomain:  cfg.BaseDomain,
		CORSOrigins: cfg.CORSOrigins,
		Pool:        manager,
		Logger:      logger,
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
	}

	// Дожидаемся рассылок и записи истории, затем закрываем пулы арендаторов.
	effects.Wait()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("tenant manager shutdown failed", slog.Any("error", err))
	}
	logger.Info("application exited")
	return nil
}

func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.TenantRepository, func(), error) {
	seeds := seedTenants(cfg.SeedTenants)

	if cfg.CatalogDatabaseURL == "" {
		logger.Info("using in-memory tenant catalog", slog.Int("tenants", len(seeds)))
		return repositories.NewMemoryTenantRepository(seeds...), func() {}, nil
	}

	conn, err := db.Connect(cfg.CatalogDatabaseURL, cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("connect catalog database: %w", err)
	}
	closeFn := func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close catalog connection", slog.Any("error", err))
		}
	}
	if err := repositories.ApplyCatalogSchema(ctx, conn); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	catalog := repositories.NewPostgresTenantRepository(conn)
	for _, t := range seeds {
		if err := catalog.Create(ctx, t); err != nil && !errors.Is(err, repositories.ErrTenantConflict) {
			closeFn()
			return nil, nil, fmt.Errorf("seed tenant %s: %w", t.Slug, err)
		}
	}
	logger.Info("catalog database connection established")
	return catalog, closeFn, nil
}

func seedTenants(slugs []string) []*models.Tenant {
	now := time.Now().UTC()
	tenants := make([]*models.Tenant, 0, len(slugs))
	for _, s := range slugs {
		s = slug.Make(s)
		if s == "" {
			continue
		}
		tenants = append(tenants, &models.Tenant{
			ID:        s,
			Slug:      s,
			DBName:    "tenant_" + slug.Substitute(s, map[string]string{"-": "_"}),
			Status:    models.TenantStatusActive,
			CreatedAt: now,
		})
	}
	return tenants
}

func openConnector(cfg *config.Config) (tenancy.Connector, func(), error) {
	switch cfg.TenantStoreDriver {
	case config.StorePostgres:
		return tenancy.PostgresConnector{
			DSNTemplate:    cfg.TenantDSNTemplate,
			ConnectTimeout: cfg.ConnectTimeout,
		}, func() {}, nil
	case config.StoreMongo:
		client, err := db.ConnectMongo(cfg.MongoURI, cfg.ConnectTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return tenancy.MongoConnector{Client: client}, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongo", slog.Any("error", err))
			}
		}, nil
	default:
		return tenancy.NewMemoryConnector(), func() {}, nil
	}
}

func openBroadcaster(ctx context.Context, cfg *config.Config, hub *realtime.Hub, logger *slog.Logger) (realtime.Broadcaster, func(), error) {
	switch cfg.EventRelay {
	case config.RelayRedis:
		client, err := db.ConnectRedis(cfg.RedisURL, cfg.ConnectTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		relay := realtime.NewRedisRelay(client, hub, cfg.RelayPrefix, logger)
		ready := make(chan struct{})
		go func() {
			if err := relay.Run(ctx, ready); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis relay stopped", slog.Any("error", err))
			}
		}()
		logger.Info("redis event relay started")
		return relay, func() { _ = client.Close() }, nil
	case config.RelayNATS:
		conn, err := db.ConnectNATS(cfg.NATSURL, "tournament-engine", cfg.ConnectTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		relay := realtime.NewNATSRelay(conn, hub, cfg.RelayPrefix, logger)
		if err := relay.Start(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("start nats relay: %w", err)
		}
		logger.Info("nats event relay started")
		return relay, func() {
			if err := relay.Stop(); err != nil {
				logger.Error("failed to stop nats relay", slog.Any("error", err))
			}
			conn.Close()
		}, nil
	default:
		return realtime.NewLocalBroadcaster(hub), func() {}, nil
	}
}

func openHistory(ctx context.Context, cfg *config.Config) (storage.HistorySink, error) {
	if !cfg.HistoryEnabled() {
		return storage.NopHistorySink{}, nil
	}
	store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
		Endpoint:        cfg.HistoryEndpoint,
		Region:          cfg.HistoryRegion,
		AccessKeyID:     cfg.HistoryAccessKeyID,
		SecretAccessKey: cfg.HistorySecretAccessKey,
		BucketName:      cfg.HistoryBucket,
		PublicBaseURL:   cfg.HistoryPublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}
	return storage.NewObjectHistorySink(store), nil
}
