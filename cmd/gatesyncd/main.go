package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"gate-sync-backend/config"
	"gate-sync-backend/internal/api"
	"gate-sync-backend/internal/db"
	"gate-sync-backend/internal/notification"
	"gate-sync-backend/internal/store"
	"gate-sync-backend/internal/stream"
	"gate-sync-backend/internal/sync"
	"gate-sync-backend/internal/upstream"
)

func main() {
	logger := log.New(os.Stdout, "gatesyncd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Sync.JobSiteID == "" {
		logger.Fatalf("sync.job_site_id must be configured")
	}
	if cfg.Upstream.AuthToken == "" {
		logger.Fatalf("upstream.auth_token must be configured")
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured; capacity alerts are disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	apiClient := upstream.NewClient(cfg.Upstream)

	// Alert worker pool (only when push is configured)
	var alerts sync.AlertDispatcher
	if webpushOptions != nil {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		alerts = workerPool
	}

	reconciler := sync.NewReconciler(cfg.Sync.JobSiteID, apiClient, appStore, cfg.Sync.RefetchDebounce)
	defer reconciler.Close()

	poller := sync.NewPoller(cfg.Sync, apiClient, reconciler, appStore, alerts)
	go poller.Run(ctx)

	// Event-stream connection: opened once at startup, closed once at
	// shutdown. Reconnects on abnormal closure are internal to the client.
	streamClient := stream.NewClient(stream.Options{
		URL:              cfg.Stream.URL,
		BaseURL:          cfg.Upstream.BaseURL,
		Token:            cfg.Upstream.AuthToken,
		ReconnectInitial: cfg.Stream.ReconnectInitial,
		ReconnectMax:     cfg.Stream.ReconnectMax,
		MaxAttempts:      cfg.Stream.ReconnectMaxAttempts,
	})
	streamClient.SetHandler(reconciler.HandleMessage)
	if err := streamClient.Connect(); err != nil {
		logger.Printf("event stream connect failed (polling continues): %v", err)
	}
	defer streamClient.Disconnect()

	handler := api.NewHandler(appStore, reconciler, poller, streamClient, webpushOptions, cfg.Sync.JobSiteID)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
