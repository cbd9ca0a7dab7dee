// Package stock applies every change to a product's available stock, whether
// it comes from the API or from order events, and keeps listing caches
// coherent with those changes.
//
// Stock deltas are pushed into the store as a single increment statement so
// the API path and the event path never lose each other's writes. Listing
// caches are invalidated before the store is touched and again once the write
// is durable, so a page cached from the old row in between does not outlive
// the write. Invalidation is best effort and never blocks the mutation.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/repository"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/cache"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
	"github.com/tuanvumaihuynh/product-catalog/pkg/outbox"
	"github.com/tuanvumaihuynh/product-catalog/pkg/ptr"
)

const TopicProductStockOversold = "product.stock-oversold"

// OversoldEvent is published when a reservation leaves stock below zero.
type OversoldEvent struct {
	ProductID      string `json:"productId"`
	AvailableStock int    `json:"availableStock"`
	Delta          int    `json:"delta"`
}

// ProcessedEvent identifies a consumed event in the dedup ledger.
type ProcessedEvent struct {
	Topic string
	ID    string
	// TTL bounds how long the event id suppresses redeliveries.
	TTL time.Duration
}

type Engine struct {
	logger             *slog.Logger
	db                 db.DB
	productRepo        repository.ProductRepository
	outboxMsgRepo      repository.OutboxMsgRepository
	processedEventRepo repository.ProcessedEventRepository
	cache              cache.Cache
}

func NewEngine(
	logger *slog.Logger,
	db db.DB,
	productRepo repository.ProductRepository,
	outboxMsgRepo repository.OutboxMsgRepository,
	processedEventRepo repository.ProcessedEventRepository,
	cache cache.Cache,
) *Engine {
	return &Engine{
		logger:             logger.With(slog.String("component", "stock-engine")),
		db:                 db,
		productRepo:        productRepo,
		outboxMsgRepo:      outboxMsgRepo,
		processedEventRepo: processedEventRepo,
		cache:              cache,
	}
}

// ApplyDelta adds delta to the product's available stock. Reservations pass
// a negative delta, releases a positive one. The result is not clamped: a
// negative stock is logged and announced on TopicProductStockOversold.
func (e *Engine) ApplyDelta(ctx context.Context, productID uuid.UUID, delta int) (model.Product, error) {
	product, _, err := e.applyDelta(ctx, nil, productID, delta)
	return product, err
}

// ApplyEventDelta is ApplyDelta for a consumed event. The event id is marked
// processed in the same transaction as the stock change, so both commit or
// roll back together. It reports false, changing nothing, when the event was
// already applied within ev.TTL.
func (e *Engine) ApplyEventDelta(ctx context.Context, ev ProcessedEvent, productID uuid.UUID, delta int) (model.Product, bool, error) {
	return e.applyDelta(ctx, &ev, productID, delta)
}

func (e *Engine) applyDelta(ctx context.Context, ev *ProcessedEvent, productID uuid.UUID, delta int) (model.Product, bool, error) {
	e.InvalidateListings(ctx)

	var (
		updated model.Product
		applied bool
	)
	if err := e.db.WithTx(ctx, func(tx db.DB) error {
		if ev != nil {
			marked, err := e.processedEventRepo.
				WithDB(tx).
				MarkEventProcessed(ctx, repository.MarkEventProcessedParams{
					Topic:   ev.Topic,
					EventID: ev.ID,
					TTL:     ev.TTL,
				})
			if err != nil {
				return fmt.Errorf("processed event repository mark event processed: %w", err)
			}
			if !marked {
				return nil
			}
		}

		var err error
		updated, err = e.productRepo.
			WithDB(tx).
			AddProductStock(ctx, productID, delta)
		if err != nil {
			return fmt.Errorf("product repository add product stock: %w", err)
		}
		applied = true

		if delta >= 0 || !updated.Oversold() {
			return nil
		}

		e.logger.WarnContext(ctx, "product oversold",
			slog.String("product_id", productID.String()),
			slog.Int("available_stock", updated.AvailableStock),
			slog.Int("delta", delta),
		)

		evBytes, err := json.Marshal(OversoldEvent{
			ProductID:      productID.String(),
			AvailableStock: updated.AvailableStock,
			Delta:          delta,
		})
		if err != nil {
			return fmt.Errorf("marshal oversold event: %w", err)
		}

		if err := e.outboxMsgRepo.
			WithDB(tx).
			CreateOutboxMsg(ctx, repository.CreateOutboxMsgParams{
				Topic:        TopicProductStockOversold,
				Headers:      outbox.BuildHeaders(ctx),
				Payload:      evBytes,
				PartitionKey: ptr.New(productID.String()),
			}); err != nil {
			return fmt.Errorf("outbox msg repository create outbox msg: %w", err)
		}

		return nil
	}); err != nil {
		return model.Product{}, false, storeError(err)
	}

	if applied {
		e.InvalidateListings(ctx)
	}

	return updated, applied, nil
}

// ApplyFieldUpdate merges the non-nil fields of patch into the product. An
// empty patch changes nothing but still invalidates listings and still fails
// for an unknown id.
func (e *Engine) ApplyFieldUpdate(ctx context.Context, productID uuid.UUID, patch model.ProductPatch) (model.Product, error) {
	e.InvalidateListings(ctx)

	updated, err := e.productRepo.UpdateProductFields(ctx, productID, patch)
	if err != nil {
		return model.Product{}, storeError(fmt.Errorf("product repository update product fields: %w", err))
	}

	e.InvalidateListings(ctx)

	return updated, nil
}

// InvalidateListings deletes every cached key under the product prefix.
// Cache failures are logged and swallowed.
func (e *Engine) InvalidateListings(ctx context.Context) {
	keys, err := e.cache.KeysWithPrefix(ctx, cache.ProductPrefix)
	if err != nil {
		e.logger.WarnContext(ctx, "error listing cache keys for invalidation", slog.Any("error", err))
		return
	}

	if err := e.cache.DeleteKeys(ctx, keys); err != nil {
		e.logger.WarnContext(ctx, "error deleting cache keys",
			slog.Int("count", len(keys)),
			slog.Any("error", err),
		)
		return
	}

	if len(keys) > 0 {
		e.logger.DebugContext(ctx, "invalidated product listings", slog.Int("count", len(keys)))
	}
}

func storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return apperr.ProductNotFoundErr.WrapParent(err)
	case errors.Is(err, repository.ErrStockOutOfRange):
		return apperr.StockOutOfRangeErr.WrapParent(err)
	}
	return apperr.DownstreamUnavailableErr.WrapParent(err)
}
