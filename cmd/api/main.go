package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-background-remover/internal/config"
	"go-background-remover/internal/container"
	"go-background-remover/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize dependency injection container
	c, err := container.NewContainer(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize container")
	}

	// The model must be loaded before the listener binds.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Initialize(ctx); err != nil {
		logger.WithError(err).WithField("model", cfg.Model.Name).Fatal("Failed to initialize model")
	}

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      c.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"address":          cfg.ServerAddress(),
			"backend":          cfg.Model.Backend,
			"model":            cfg.Model.Name,
			"workers":          cfg.Workers,
			"inference_slots":  cfg.InferenceConcurrency,
			"read_timeout":     cfg.ReadTimeout.String(),
			"write_timeout":    cfg.WriteTimeout.String(),
			"queue_timeout":    cfg.QueueTimeout.String(),
			"max_file_size_mb": cfg.MaxFileSizeMB(),
			"max_image_pixels": cfg.MaxImagePixels,
		}).Info("Background removal server ready")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	}
	stop()

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server forced to shutdown")
	}
	if err := c.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to release model")
	}

	logger.Info("Server exited")
}
