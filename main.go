package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"fakebroker/api/classifier"
	"fakebroker/api/config"
	"fakebroker/api/database"
	"fakebroker/api/handlers"
	"fakebroker/api/logging"
	"fakebroker/api/middleware"
	"fakebroker/api/policy"
	"fakebroker/api/pricefeed"
	"fakebroker/api/profile"
	"fakebroker/api/store"
	"fakebroker/api/tracking"
	"fakebroker/api/utils"
)

// userStore is what both the auth layer and the profile service need.
type userStore interface {
	handlers.UserRepository
	profile.ProfileSaver
}

func main() {
	// Load .env before reading any configuration.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	release := cfg.GinMode == gin.ReleaseMode
	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	logging.Init(release, logging.ParseLevel(cfg.LogLevel))

	ctx := context.Background()

	var (
		events   tracking.EventRepository
		sessions tracking.SessionRepository
		users    userStore
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		mem := store.NewMemoryStore()
		events, sessions, users = mem, mem, store.NewMemoryUserStore()
	default:
		// --- MongoDB (events and sessions) ---
		mongoClient, err := database.NewMongoDB(cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			fatal("failed to initialize MongoDB", err)
		}
		defer mongoClient.Close()
		events = store.NewEventStore(mongoClient)
		sessions = store.NewSessionStore(mongoClient)

		// --- PostgreSQL (users) ---
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			fatal("failed to migrate PostgreSQL database", err)
		}
		pg, err := database.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			fatal("failed to initialize PostgreSQL database", err)
		}
		defer pg.Close()
		users = store.NewUserStore(pg.DB)
	}

	// --- ClickHouse archive (optional) ---
	trackerOpts := []tracking.Option{}
	var stats handlers.StatsSource
	if cfg.ArchiveEnabled() {
		chClient, err := database.NewClickHouseDB(database.ClickHouseConfig{
			Host:       cfg.ClickHouseHost,
			NativePort: cfg.ClickHouseNativePort,
			Database:   cfg.ClickHouseDatabase,
			Username:   cfg.ClickHouseUsername,
			Password:   cfg.ClickHousePassword,
		})
		if err != nil {
			fatal("failed to initialize ClickHouse database", err)
		}
		defer chClient.Close()

		analytics := store.NewAnalyticsStore(chClient)
		if err := analytics.EnsureSchema(ctx); err != nil {
			fatal("failed to create ClickHouse schema", err)
		}
		trackerOpts = append(trackerOpts, tracking.WithArchive(analytics))
		stats = analytics
	} else {
		slog.Info("ClickHouse archive disabled")
	}

	adminPolicy, err := policy.NewAdminPolicy(ctx, cfg.AdminEmailList())
	if err != nil {
		fatal("failed to compile admin policy", err)
	}

	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL())
	tracker := tracking.New(events, sessions, trackerOpts...)
	ollama := classifier.NewOllama(cfg.OllamaURL, classifier.WithModel(cfg.OllamaModel))
	profiles := profile.NewService(tracker, ollama, users, cfg.ClassifierTimeoutDuration())

	r := newRouter(routerDeps{
		FrontendURL: cfg.FrontendURL,
		Limiter:     middleware.NewIPRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindowDuration()),
		Tokens:      tokens,
		Users:       users,
		Policy:      adminPolicy,
		Auth:        handlers.NewAuthHandlers(users, tokens, cfg.BcryptCost),
		Track:       handlers.NewTrackHandlers(tracker, profiles),
		Admin:       handlers.NewAdminHandlers(users, adminPolicy, tracker, profiles),
		Stats:       handlers.NewStatsHandlers(stats),
		Price:       handlers.NewPriceHandlers(pricefeed.New()),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed to start", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exiting")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
