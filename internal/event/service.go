package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tuanvumaihuynh/product-catalog/internal/config"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/stock"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/mq"
	"github.com/tuanvumaihuynh/product-catalog/pkg/validator"
)

// StockReconciler applies signed stock changes. ApplyEventDelta records the
// event in the dedup ledger atomically with the change and reports false for
// an event already applied.
type StockReconciler interface {
	ApplyDelta(ctx context.Context, productID uuid.UUID, delta int) (model.Product, error)
	ApplyEventDelta(ctx context.Context, ev stock.ProcessedEvent, productID uuid.UUID, delta int) (model.Product, bool, error)
}

// Service consumes order lifecycle events and turns them into stock changes.
type Service struct {
	cfg        config.Event
	logger     *slog.Logger
	mqConsumer mq.Consumer
	stock      StockReconciler
	validator  validator.Validator
}

// New creates a new event service.
func New(
	cfg config.Event,
	logger *slog.Logger,
	mqConsumer mq.Consumer,
	stock StockReconciler,
	validator validator.Validator,
) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger.With(slog.String("service", "event")),
		mqConsumer: mqConsumer,
		stock:      stock,
		validator:  validator,
	}
}

type CleanupFunc func()

// Handlers returns the topic table consumed by this service.
func (s *Service) Handlers() map[string]mq.HandlerFunc {
	return map[string]mq.HandlerFunc{
		s.cfg.TopicOrderCreated:   s.orderHandler(orderCreated),
		s.cfg.TopicOrderCancelled: s.orderHandler(orderCancelled),
	}
}

func (s *Service) Run(ctx context.Context) (CleanupFunc, error) {
	if s.cfg.TopicOrderCreated == s.cfg.TopicOrderCancelled {
		return nil, fmt.Errorf("order topics must differ, both are %q", s.cfg.TopicOrderCreated)
	}

	if err := s.mqConsumer.RegisterHandlers(s.Handlers()); err != nil {
		return nil, fmt.Errorf("register order event handlers: %w", err)
	}

	mqCleanup, err := s.mqConsumer.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run mq consumer: %w", err)
	}

	cleanup := func() {
		mqCleanup()
	}

	return cleanup, nil
}
