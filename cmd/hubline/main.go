package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hubline-chat/hubline-server/internal/api"
	"github.com/hubline-chat/hubline-server/internal/config"
	"github.com/hubline-chat/hubline-server/internal/gateway"
	"github.com/hubline-chat/hubline-server/internal/httputil"
	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/postgres"
	"github.com/hubline-chat/hubline-server/internal/protocol"
	"github.com/hubline-chat/hubline-server/internal/user"
	"github.com/hubline-chat/hubline-server/internal/valkey"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().Str("env", cfg.ServerEnv).Str("data_dir", cfg.DataDir).Msg("Starting Hubline Server")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard \"*\". Set an explicit origin for production deployments.")
	}

	ctx := context.Background()

	// Hub and user stores are file-backed; Valkey, when configured, fronts
	// hub snapshot reads.
	var hubs hub.Repository = hub.NewFSRepository(cfg.DataDir, log.Logger)
	users := user.NewFSRepository(cfg.DataDir, log.Logger)

	var health api.HealthHandler
	if cfg.ValkeyConfigured() {
		rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
		if err != nil {
			return fmt.Errorf("connect valkey: %w", err)
		}
		defer rdb.Close()
		hubs = hub.NewCachedRepository(hubs, rdb, cfg.HubCacheTTL, log.Logger)
		health.Valkey = rdb
		log.Info().Msg("Valkey connected")
	}

	// Messages live in PostgreSQL when a DSN is configured, otherwise in
	// per-channel journals under the data directory.
	var messages message.Repository = message.NewFSRepository(cfg.DataDir, log.Logger)
	if cfg.DatabaseConfigured() {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		messages = message.NewPGRepository(db, log.Logger)
		health.DB = db
		log.Info().Msg("PostgreSQL connected, migrations complete")
	}

	indexes := index.NewManager(cfg.DataDir, cfg.CommitThreshold, messages, log.Logger)

	registry := gateway.NewRegistry()
	router := gateway.NewRouter(registry, log.Logger)
	handler := gateway.NewHandler(hubs, messages, indexes, registry, router, log.Logger)
	gwServer := gateway.NewServer(cfg, handler, registry, log.Logger)

	app := fiber.New(fiber.Config{
		AppName: "Hubline",
		// Catches errors handlers did not already map to wire responses,
		// e.g. Fiber's built-in 404/405.
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: protocol.NewError(protocol.CodeInternal),
			})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Split(cfg.CORSAllowOrigins, ","),
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAPIRequests,
		Expiration: time.Duration(cfg.RateLimitAPIWindowSeconds) * time.Second,
	}))

	hubAPI := api.NewHubHandler(hubs, users, indexes, registry, router, cfg.DataDir, log.Logger)
	api.RegisterRoutes(app, api.Handlers{
		Health:  &health,
		Auth:    api.NewAuthHandler(users, cfg.JWTSecret, cfg.JWTAccessTTL, log.Logger),
		Hub:     hubAPI,
		Channel: api.NewChannelHandler(hubs, hubAPI, indexes, registry, router, log.Logger),
		Member:  api.NewMemberHandler(hubs, hubAPI, router, log.Logger),
		Message: api.NewMessageHandler(hubs, messages, indexes, cfg.SearchResultLimit, cfg.HistoryResultLimit, log.Logger),
		Gateway: api.NewGatewayHandler(gwServer),
	}, cfg.JWTSecret)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	// Drain gateway clients first so nothing writes to the indexes while
	// they flush their pending batches.
	gwServer.Shutdown()
	if err := indexes.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Index shutdown failed")
	}

	log.Info().Msg("Server stopped cleanly")
	return nil
}
