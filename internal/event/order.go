package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/stock"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/mq"
)

// orderEventKind discriminates the order topics. Every kind maps to exactly
// one stock direction; adding a kind without a case fails delta's switch.
type orderEventKind uint8

const (
	orderCreated orderEventKind = iota + 1
	orderCancelled
)

func (k orderEventKind) String() string {
	switch k {
	case orderCreated:
		return "order_created"
	case orderCancelled:
		return "order_cancelled"
	default:
		return "unknown"
	}
}

// delta converts an order quantity into a signed stock change: a created
// order reserves stock, a cancelled one releases it.
func (k orderEventKind) delta(quantity int) (int, error) {
	switch k {
	case orderCreated:
		return -quantity, nil
	case orderCancelled:
		return quantity, nil
	default:
		return 0, fmt.Errorf("unknown order event kind %d", k)
	}
}

// OrderEvent is the wire payload of order.created and order.cancelled.
// EventID is optional; when present it enables duplicate suppression.
type OrderEvent struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=2147483647"`
	EventID   string `json:"eventId,omitempty" validate:"omitempty,max=128"`
}

func (s *Service) decodeOrderEvent(payload []byte) (OrderEvent, error) {
	var ev OrderEvent

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		return OrderEvent{}, apperr.MalformedEventErr.WrapParent(fmt.Errorf("decode order event: %w", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return OrderEvent{}, apperr.MalformedEventErr.WrapParent(errors.New("unexpected data after order event"))
	}

	if err := s.validator.Validate(ev); err != nil {
		return OrderEvent{}, apperr.MalformedEventErr.WrapParent(err)
	}

	return ev, nil
}

func (s *Service) orderHandler(kind orderEventKind) mq.HandlerFunc {
	return func(ctx context.Context, msg mq.Message) error {
		ev, err := s.decodeOrderEvent(msg.Payload)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}

		if err := s.handleOrderEvent(ctx, msg.Topic, kind, ev); err != nil {
			return fmt.Errorf("handle %s event: %w", kind, err)
		}

		return nil
	}
}

func (s *Service) handleOrderEvent(ctx context.Context, topic string, kind orderEventKind, ev OrderEvent) error {
	delta, err := kind.delta(ev.Quantity)
	if err != nil {
		return err
	}

	// validated as uuid by decodeOrderEvent
	productID := uuid.MustParse(ev.ProductID)

	var (
		product model.Product
		applied = true
	)
	if ev.EventID == "" || s.cfg.DedupTTL <= 0 {
		product, err = s.stock.ApplyDelta(ctx, productID, delta)
	} else {
		product, applied, err = s.stock.ApplyEventDelta(ctx, stock.ProcessedEvent{
			Topic: topic,
			ID:    ev.EventID,
			TTL:   s.cfg.DedupTTL,
		}, productID, delta)
	}
	if err != nil {
		return fmt.Errorf("apply stock delta: %w", err)
	}

	if !applied {
		s.logger.InfoContext(ctx, "duplicate order event skipped",
			slog.String("event_id", ev.EventID),
			slog.String("product_id", ev.ProductID),
		)
		return nil
	}

	s.logger.InfoContext(ctx, "applied order event",
		slog.String("kind", kind.String()),
		slog.String("product_id", ev.ProductID),
		slog.Int("delta", delta),
		slog.Int("available_stock", product.AvailableStock),
	)

	return nil
}
