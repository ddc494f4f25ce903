package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"natours-api/config"
	"natours-api/database"
	"natours-api/jobs"
	"natours-api/middleware"
	"natours-api/repositories"
	"natours-api/routes"
	"natours-api/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	log := newLogger(cfg)

	// Initialize database
	db, err := database.Initialize(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	// Run migrations
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}

	if cfg.SeedData {
		if err := database.SeedData(db, log); err != nil {
			log.WithError(err).Warn("failed to seed database")
		}
	}

	// Redis is optional
	redisClient, err := services.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("invalid REDIS_URL")
	}

	var rateStore middleware.RateLimitStore
	var memoryStore *middleware.MemoryRateStore
	if redisClient != nil {
		rateStore = middleware.NewRedisRateStore(redisClient)
		log.Info("redis enabled for caching and rate limiting")
	} else {
		memoryStore = middleware.NewMemoryRateStore()
		rateStore = memoryStore
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.NewRouter(routes.Dependencies{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Auth:      services.NewAuthService(cfg.JWTSecret, cfg.JWTExpiresIn),
		Mailer:    services.NewEmailService(cfg, log),
		Images:    services.NewImageService(cfg.PublicDir),
		Cache:     services.NewCacheService(redisClient, cfg.CacheTTL, log),
		RateStore: rateStore,
		Registry:  registry,
	})

	var pruner jobs.Pruner
	if memoryStore != nil {
		pruner = memoryStore
	}
	cleanup := jobs.NewResetTokenCleanupJob(repositories.NewUserRepository(db), pruner, log)
	if err := cleanup.Start(jobs.DefaultCleanupSchedule); err != nil {
		log.WithError(err).Fatal("failed to schedule cleanup job")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Environment}).Info("starting Natours API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		log.WithError(err).Error("server failed")
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown failed")
		exitCode = 1
	}
	cleanup.Stop(ctx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	cancel()
	os.Exit(exitCode)
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
