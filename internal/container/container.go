package container

import (
	"context"
	"fmt"
	"net/http"

	"go-background-remover/internal/config"
	"go-background-remover/internal/factory"
	"go-background-remover/internal/inference"
	"go-background-remover/internal/logger"
	"go-background-remover/internal/observer"
	"go-background-remover/internal/service"
	"go-background-remover/internal/transport"
	"go-background-remover/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	session   *inference.Session
	publisher *observer.EventPublisher
	metrics   *observer.MetricsObserver
	service   service.BackgroundRemovalService
	handler   http.Handler
}

// NewContainer builds the dependency graph. The model is not loaded until Initialize.
func NewContainer(cfg *config.Config) (*Container, error) {
	return newContainer(cfg, factory.NewComponentFactory())
}

func newContainer(cfg *config.Config, components *factory.ComponentFactory) (*Container, error) {
	remover, err := components.RemoverFactory.CreateRemover(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create remover: %w", err)
	}

	session := inference.NewSession(remover, cfg.InferenceConcurrency)

	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	validator := validation.NewUploadValidatorWithPolicy(validation.Policy{
		MaxFileSize:    cfg.MaxFileSize,
		MaxImagePixels: cfg.MaxImagePixels,
	})

	svc := service.NewBackgroundRemovalService(session, validator, publisher)
	handler := transport.NewHandler(svc, metrics, cfg)

	return &Container{
		config:    cfg,
		session:   session,
		publisher: publisher,
		metrics:   metrics,
		service:   svc,
		handler:   handler,
	}, nil
}

// Initialize loads the model. It must succeed before the server accepts traffic.
func (c *Container) Initialize(ctx context.Context) error {
	return c.session.Initialize(ctx)
}

// Close releases the model.
func (c *Container) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Session returns the shared inference session
func (c *Container) Session() *inference.Session {
	return c.session
}
