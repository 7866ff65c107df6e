// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LeadSpringHQ/leadspring-go/internal/application/container"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/cleanup"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/observability/logging"
	"github.com/LeadSpringHQ/leadspring-go/internal/infrastructure/persistence/database"
	"github.com/LeadSpringHQ/leadspring-go/internal/presentation/http/server"
	"github.com/LeadSpringHQ/leadspring-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until
// shutdown.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `
  _                   _ ____             _
 | |    ___  __ _  __| / ___| _ __  _ __(_)_ __   __ _
 | |   / _ \/ _` + "`" + ` |/ _` + "`" + ` \___ \| '_ \| '__| | '_ \ / _` + "`" + ` |
 | |__|  __/ (_| | (_| |___) | |_) | |  | | | | | (_| |
 |_____\___|\__,_|\__,_|____/| .__/|_|  |_|_| |_|\__, |
                             |_|                 |___/
` + "\033[0m")

	if config.MasterSecret == "" {
		return fmt.Errorf("LEADSPRING_MASTER_SECRET is required")
	}
	if config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	// Step 1: Channeled logging
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Channeled logging initialized")

	// Step 2: Database connection and schema
	log.Println("Connecting to database...")
	db, err := database.NewConnectionWithLogger(config.DBDriver, config.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	logger.Startup().Info("Database ready", "driver", config.DBDriver)

	// Step 3: Dependency injection container
	appContainer, err := container.NewContainer(db, logger)
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 4: Dispatch workers
	appContainer.Dispatcher.Start(ctx)

	// Step 5: Retention cleanup worker
	cleanupWorker := cleanup.NewWorker(appContainer.VisitorRepo, logger)
	go cleanupWorker.Start(ctx)

	// Step 6: HTTP server
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Drain before cancelling the worker context so queued sends still
	// settle their ledger rows.
	logger.Shutdown().Info("Draining dispatch queues...")
	appContainer.Dispatcher.Stop()
	cancelBackgroundTasks()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
