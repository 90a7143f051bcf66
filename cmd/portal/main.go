package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/patient-portal/internal/app/bootstrap"
	appconfig "github.com/wolfman30/patient-portal/internal/config"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

func main() {
	// A .env file is optional; real deployments set the environment.
	envFileErr := godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	if envFileErr != nil && !errors.Is(envFileErr, os.ErrNotExist) {
		logger.Warn("failed to read .env file", "error", envFileErr)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting patient portal server",
		"env", cfg.Env,
		"port", cfg.Port,
		"portal_api", cfg.PortalAPIBaseURL,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	portal, err := bootstrap.BuildPortal(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to build portal", "error", err)
		os.Exit(1)
	}
	defer portal.Close()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      portal.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PortalAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := serve(srv, logger); err != nil {
		logger.Error("server error", "error", err)
		portal.Close()
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

// serve runs srv until SIGINT or SIGTERM, then drains in-flight requests.
func serve(srv *http.Server, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
