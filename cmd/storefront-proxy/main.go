package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/storefront-client/internal/config"
	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/cart"
	"github.com/Sternrassler/storefront-client/pkg/checkout"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/errlog"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/Sternrassler/storefront-client/pkg/offline"
	"github.com/Sternrassler/storefront-client/pkg/ratelimit"
	"github.com/Sternrassler/storefront-client/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := cfg.App.ToLoggingConfig()
	logCfg.Service = "storefront-proxy"
	logger := logging.Setup(logCfg)

	// Setup Redis
	redisClient := redis.NewClient(cfg.Redis.ToRedisOptions())
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	kv := storage.NewRedisKV(redisClient, storage.DefaultPrefix)
	errorLog := errlog.New(kv, cfg.App.Origin, cfg.API.UserAgent, logging.NewLogger("errlog"))

	// API client
	clientCfg := cfg.API.ToClientConfig()
	clientCfg.ErrorLog = errorLog
	apiClient, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	// Cart and checkout
	cartStore := cart.New(ctx, kv, apiClient, cart.WithLogger(logging.NewLogger("cart")))
	session := checkout.NewSession(cartStore,
		checkout.WithLimiter(ratelimit.NewLimiter(redisClient, logging.NewLogger("ratelimit"))),
		checkout.WithLogger(logging.NewLogger("checkout")),
	)

	// Offline controller
	cacheStorage, err := cache.NewStorage(redisClient, cache.DefaultPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache storage")
	}
	controller, err := offline.New(
		cfg.Cache.ToOfflineConfig(cfg.App.Origin),
		cacheStorage,
		offline.WithLogger(logging.NewLogger("offline")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create offline controller")
	}

	// A failed install leaves the controller uncontrolled: requests still go
	// to the network, they are just not cached.
	if err := controller.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Offline cache not installed, serving from network only")
	}

	srv := &http.Server{
		Addr: cfg.App.GetAppAddress(),
		Handler: newRouter(&server{
			redis:      redisClient,
			cart:       cartStore,
			checkout:   session,
			controller: controller,
			errors:     errorLog,
			logger:     logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("origin", cfg.App.Origin).
			Str("api", cfg.API.BaseURL).
			Msg("Starting storefront proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server exited")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
