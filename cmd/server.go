package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bgbye/bgbye/internal/api"
	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/service"
	"github.com/bgbye/bgbye/internal/telemetry"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Run:   serverRun,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

// serverRun runs the API server until SIGINT or SIGTERM
func serverRun(cmd *cobra.Command, args []string) {
	cfg := config.AppConfig

	// Initialize logger
	logInstance := logger.NewLogger(cfg)
	defer logInstance.Sync()

	logInstance.Infof("Starting bgbye API %s", Version)

	// Generate instance ID
	instanceID := utils.GenerateInstanceID("api")
	logInstance.Infof("Instance ID generated: %s", instanceID)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer("bgbye", Version, cfg.Telemetry)
	if err != nil {
		logInstance.Fatalf(err, "Failed to initialize tracing")
	}
	defer shutdownTracer()

	// Initialize components
	components, err := initializeComponents(cfg, instanceID, logInstance, componentOptions{
		withMetrics: true,
		withBroker:  true,
	})
	if err != nil {
		logInstance.Fatalf(err, "Failed to initialize components")
	}

	// Idle session janitor
	janitor, err := service.NewJanitor(components.service, cfg.Storage.SessionTTL, cfg.Storage.JanitorSchedule, logInstance)
	if err != nil {
		logInstance.Fatalf(err, "Failed to schedule janitor")
	}
	janitor.Start()
	logInstance.Infof("Janitor scheduled %q, session ttl %s", cfg.Storage.JanitorSchedule, cfg.Storage.SessionTTL)

	// Create API router
	router := api.NewRouter(components.service, components.metrics, logInstance, cfg.Server)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logInstance.Infof("Starting HTTP server on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logInstance.Fatalf(err, "Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logInstance.Infof("Received signal %v, shutting down server...", sig)

	// Create a deadline for server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown the server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logInstance.Errorf("Server shutdown failed: %v", err)
	}

	janitor.Stop(shutdownCtx)

	// Stop polling and close connections
	components.Close(shutdownCtx, logInstance)

	logInstance.Infof("Server shutdown complete")
}
