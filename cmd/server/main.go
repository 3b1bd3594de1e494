// Command server runs the people-search backend. main only wires
// dependencies together; behavior lives in the internal packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	authHandler "peoplefinder/internal/auth/handler"
	authService "peoplefinder/internal/auth/service"
	revocationStore "peoplefinder/internal/auth/store/revocation"
	userStore "peoplefinder/internal/auth/store/user"
	"peoplefinder/internal/auth/token"
	creditsHandler "peoplefinder/internal/credits/handler"
	creditsService "peoplefinder/internal/credits/service"
	"peoplefinder/internal/gateway"
	historyHandler "peoplefinder/internal/history/handler"
	historyService "peoplefinder/internal/history/service"
	historyStore "peoplefinder/internal/history/store"
	"peoplefinder/internal/platform/config"
	"peoplefinder/internal/platform/httpserver"
	"peoplefinder/internal/platform/logger"
	"peoplefinder/internal/platform/metrics"
	"peoplefinder/internal/platform/postgres"
	platformRedis "peoplefinder/internal/platform/redis"
	"peoplefinder/internal/session"
	sessionHandler "peoplefinder/internal/session/handler"
	"peoplefinder/internal/session/manager"
	sessionStore "peoplefinder/internal/session/store"
	trackingHandler "peoplefinder/internal/tracking/handler"
	trackingService "peoplefinder/internal/tracking/service"
	trackingStore "peoplefinder/internal/tracking/store"
	httptransport "peoplefinder/internal/transport/http"
	dErrors "peoplefinder/pkg/domain-errors"
)

const (
	tokenIssuer     = "peoplefinder"
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err.Error())
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	met := metrics.New()

	// Redis and Postgres are optional. A missing backend degrades to
	// in-memory stores so local development needs no infrastructure.
	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, using in-memory fallbacks", "error", err.Error())
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		log.Warn("postgres unavailable, using in-memory fallbacks", "error", err.Error())
		db = nil
	}
	if db != nil {
		defer db.Close()
	}

	tokens, err := token.New(cfg.JWTSigningKey, tokenIssuer, tokenTTL)
	if err != nil {
		return err
	}

	var users authService.UserStore = userStore.NewMemory()
	if db != nil {
		users = userStore.NewPostgres(db)
	}
	var revocations authService.RevocationList = revocationStore.NewMemory()
	if redisClient != nil {
		revocations = revocationStore.NewRedis(redisClient)
	}
	authSvc, err := authService.New(users, revocations, tokens, authService.WithLogger(log))
	if err != nil {
		return err
	}
	bootstrapUser(cfg.Auth, authSvc, log)

	var histStore historyService.Store = historyStore.NewMemory()
	if db != nil {
		histStore = historyStore.NewPostgres(db)
	}
	histSvc, err := historyService.New(histStore,
		historyService.WithLogger(log),
		historyService.WithCreditsLimit(cfg.Credits.Limit),
	)
	if err != nil {
		return err
	}

	creditsSvc, err := creditsService.New(histSvc, cfg.Credits.Limit, creditsService.WithLogger(log))
	if err != nil {
		return err
	}

	var trackStore trackingService.Store = trackingStore.NewMemory()
	if db != nil {
		trackStore = trackingStore.NewPostgres(db)
	}
	trackSvc, err := trackingService.New(trackStore, trackingService.WithLogger(log))
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg.Upstream.BaseURL, cfg.Upstream.Token,
		gateway.WithLogger(log),
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
	)
	if err != nil {
		return err
	}

	snapshots := func(userID string) session.SnapshotStore {
		if redisClient != nil {
			return sessionStore.NewRedis(redisClient, userID, cfg.Session.TTL)
		}
		return sessionStore.NewMemory(cfg.Session.TTL)
	}
	controllers, err := manager.New(gw, creditsSvc, histSvc, snapshots,
		manager.WithLogger(log),
		manager.WithMetrics(met),
		manager.WithSearchCost(cfg.Credits.SearchCost),
	)
	if err != nil {
		return err
	}

	handlers := []httptransport.Registrar{
		authHandler.New(authSvc, log, met, authSvc),
		sessionHandler.New(controllers, histSvc, log, met, authSvc),
		historyHandler.New(histSvc, log, met, authSvc),
		creditsHandler.New(creditsSvc, log, met, authSvc),
		trackingHandler.New(trackSvc, log, met, authSvc),
	}

	health := make(map[string]httptransport.HealthChecker)
	if redisClient != nil {
		health["redis"] = redisClient
	}
	if db != nil {
		health["postgres"] = dbHealth{db: db}
	}

	router := httptransport.NewRouter(log, handlers, health)
	srv := httpserver.New(cfg.Addr, cfg.HTTP, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting peoplefinder server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// bootstrapUser seeds the configured first account. An account that already
// exists is fine; anything else is logged and startup continues.
func bootstrapUser(cfg config.AuthConfig, authSvc *authService.Service, log *slog.Logger) {
	if cfg.BootstrapUsername == "" || cfg.BootstrapPassword == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := authSvc.Register(ctx, cfg.BootstrapUsername, cfg.BootstrapPassword)
	switch {
	case err == nil:
		log.Info("bootstrap user created", "username", cfg.BootstrapUsername)
	case dErrors.Is(err, dErrors.CodeConflict):
		// Already seeded on a previous start.
	default:
		log.Warn("failed to seed bootstrap user", "error", err.Error())
	}
}

type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
