package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncspace/internal/api"
	"syncspace/internal/auth"
	"syncspace/internal/config"
	"syncspace/internal/db"
	"syncspace/internal/repository"
	"syncspace/internal/services/realtime"
	"syncspace/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting SyncSpace realtime server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing first so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("syncspace", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(database.DB)
	wsRepo := repository.NewWorkspaceRepository(database.DB)
	userRepo := repository.NewUserRepository(database.DB)
	changeRepo := repository.NewChangeRepository(database.DB)

	// Handshake authenticator (verifies tokens issued by the account service)
	authenticator := auth.NewAuthenticator(cfg.JWTSecret)

	// Change-history writer pool: persists accepted changes off the hot path
	historyWriter := realtime.NewHistoryWriter(changeRepo, cfg.HistoryWorkers, cfg.HistoryQueueSize)
	historyWriter.Start()

	// Realtime core: hub, change engine, lock arbitrator, service
	hub := realtime.NewHub()
	hub.Start()

	engine := realtime.NewChangeEngine(docRepo, historyWriter)
	locks := realtime.NewLockArbitrator(docRepo, cfg.LockTTL)
	rtService := realtime.NewService(hub, docRepo, wsRepo, userRepo, engine, locks)
	wsHandler := realtime.NewWebSocketHandler(rtService, authenticator, userRepo)

	// REST handlers and routes
	handler := api.NewHandler(docRepo, wsRepo, changeRepo, rtService, wsHandler)
	router := api.SetupRoutes(handler, authenticator)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("   WS     /ws                          - Realtime channel")
		log.Printf("   POST   /api/documents               - Create document")
		log.Printf("   GET    /api/documents/:id/history   - Change history")
		log.Printf("   GET    /api/presence                - Online users")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Drain in-flight HTTP requests first
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Then stop the realtime hub (closes all live connections) and let the
	// history pool finish its queue
	hub.Shutdown()
	historyWriter.Shutdown()

	log.Println("✓ Server shutdown complete")
}
