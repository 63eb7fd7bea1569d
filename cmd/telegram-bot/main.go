package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"fuelstack/internal/app"
	"fuelstack/internal/config"
	"fuelstack/internal/database"
	"fuelstack/internal/logging"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/telegram"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Initialize the database
	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	metricsStore := metrics.NewStore(db.SQL)
	collectors := metrics.NewCollectors()
	application := app.New(app.Deps{
		Config:     cfg,
		Repo:       menu.NewRepository(db.SQL),
		Metrics:    metricsStore,
		Collectors: collectors,
		Logger:     logger,
	})

	// 3. Initialize Telegram Bot
	api, err := telegram.Connect(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}
	bot := telegram.New(api, application, cfg.TelegramAllowedUserIDs, telegram.Options{
		Metrics:  metricsStore,
		DataPath: filepath.Dir(cfg.DatabasePath),
		DB:       db.SQL,
		Logger:   logger,
	})

	r := chi.NewRouter()
	r.Use(collectors.Middleware)
	r.Method(http.MethodPost, "/webhook", bot)
	r.Method(http.MethodGet, "/metrics", collectors.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 4. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("telegram bot server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
}
