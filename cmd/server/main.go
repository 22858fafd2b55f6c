package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetdesk/console/internal/config"
	"github.com/fleetdesk/console/internal/database"
	"github.com/fleetdesk/console/internal/handlers"
	"github.com/fleetdesk/console/internal/realtime"
	"github.com/fleetdesk/console/internal/repository"
	cron "github.com/fleetdesk/console/internal/scheduler"
	"github.com/fleetdesk/console/internal/services"
	"github.com/fleetdesk/console/internal/store"
	"github.com/fleetdesk/console/pkg/email"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/fleetdesk/console/pkg/telegram"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger(cfg.LogLevel)
	logger.Log.Info("Logger initialized")

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET must be set")
	}

	// --- Document store ---
	var docs store.DocumentStore
	switch cfg.StoreBackend {
	case "memory":
		logger.Log.Warn("Using in-memory store, data is lost on restart")
		docs = store.NewMemoryStore()
	default:
		db, err := database.ConnectDB(cfg)
		if err != nil {
			logger.Log.Fatalf("Database connection error: %v", err)
		}
		docs = repository.NewDocumentRepository(db)
	}

	clock := clockwork.NewRealClock()
	hub := realtime.NewHub()

	// --- Repositories ---
	operatorRepo := repository.NewOperatorRepository(docs)
	paths := services.NewPathResolver(operatorRepo)

	// --- Relays ---
	var relays []services.Relay
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		relays = append(relays, services.NewTelegramRelay(telegram.NewClient(cfg.TelegramBotToken), cfg.TelegramChatID))
	}
	if cfg.SMTPHost != "" && cfg.NotifyEmailTo != "" {
		sender := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPSender, cfg.SMTPPassword)
		relays = append(relays, services.NewEmailRelay(sender, []string{cfg.NotifyEmailTo}))
	}

	// --- Services ---
	operatorService := services.NewOperatorService(operatorRepo, cfg.JWTSecret, cfg.TokenTTL)
	lockService := services.NewLockService(docs, paths, hub, clock)
	entityService := services.NewEntityService(docs, paths, clock)
	notificationService := services.NewNotificationService(docs, clock, relays...)

	if cfg.BootstrapAdminEmail != "" {
		if err := operatorService.EnsureAdmin(context.Background(), cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			logger.Log.Fatalf("Failed to bootstrap admin: %v", err)
		}
	}

	sweeper, err := cron.StartNotificationCronJobs(notificationService, cfg.CleanupSchedule)
	if err != nil {
		logger.Log.Fatalf("Scheduler error: %v", err)
	}
	defer sweeper.Stop()

	// --- Handlers ---
	routes := &handlers.Router{
		Auth:          handlers.NewAuthHandler(operatorService),
		Entities:      handlers.NewEntityHandler(entityService),
		Locks:         handlers.NewLockHandler(lockService),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Realtime:      handlers.NewRealtimeHandler(notificationService, hub),
		JWTSecret:     cfg.JWTSecret,
		Activity:      operatorService,
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(routes.Build()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server running on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Graceful shutdown failed")
	}
	notificationService.WaitRelays()
	logger.Log.Info("Server stopped")
}
