package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
)

type MarkEventProcessedParams struct {
	Topic   string
	EventID string
	// TTL is how long the mark suppresses redeliveries. An older mark is
	// overwritten as if absent.
	TTL time.Duration
}

// ProcessedEventRepository is the dedup ledger for consumed events. Marking
// inside the transaction that applies the event ties both outcomes together.
type ProcessedEventRepository interface {
	WithDB(db db.DB) ProcessedEventRepository
	// MarkEventProcessed records the event and reports false when a live
	// mark already exists.
	MarkEventProcessed(ctx context.Context, params MarkEventProcessedParams) (bool, error)
}

type processedEventRepository struct {
	db db.DB
}

func NewProcessedEventRepository(db db.DB) ProcessedEventRepository {
	return &processedEventRepository{
		db: db,
	}
}

func (r processedEventRepository) WithDB(db db.DB) ProcessedEventRepository {
	return &processedEventRepository{
		db: db,
	}
}

func (r processedEventRepository) MarkEventProcessed(ctx context.Context, params MarkEventProcessedParams) (bool, error) {
	now := time.Now()

	var eventID string
	err := r.db.QueryRow(ctx, `
		INSERT INTO processed_events (topic, event_id, processed_at)
		VALUES (@topic, @event_id, @now)
		ON CONFLICT (topic, event_id) DO UPDATE
			SET processed_at = EXCLUDED.processed_at
			WHERE processed_events.processed_at < @expired_before
		RETURNING event_id
	`, pgx.NamedArgs{
		"topic":          params.Topic,
		"event_id":       params.EventID,
		"now":            now,
		"expired_before": now.Add(-params.TTL),
	}).Scan(&eventID)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark event processed: %w", err)
	}

	return true, nil
}
