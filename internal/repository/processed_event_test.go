package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/product-catalog/internal/repository"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
)

func TestProcessedEventRepository(t *testing.T) {
	client := newTestDB(t)
	repo := repository.NewProcessedEventRepository(client)
	ctx := context.Background()

	t.Run("Should mark an event once per topic", func(t *testing.T) {
		params := repository.MarkEventProcessedParams{Topic: "order.created", EventID: uuid.NewString(), TTL: time.Hour}

		marked, err := repo.MarkEventProcessed(ctx, params)
		require.NoError(t, err)
		assert.True(t, marked)

		marked, err = repo.MarkEventProcessed(ctx, params)
		require.NoError(t, err)
		assert.False(t, marked)

		params.Topic = "order.cancelled"
		marked, err = repo.MarkEventProcessed(ctx, params)
		require.NoError(t, err)
		assert.True(t, marked)
	})

	t.Run("Should overwrite an expired mark", func(t *testing.T) {
		params := repository.MarkEventProcessedParams{Topic: "order.created", EventID: uuid.NewString(), TTL: time.Millisecond}

		marked, err := repo.MarkEventProcessed(ctx, params)
		require.NoError(t, err)
		require.True(t, marked)
		time.Sleep(10 * time.Millisecond)

		marked, err = repo.MarkEventProcessed(ctx, params)
		require.NoError(t, err)
		assert.True(t, marked)
	})

	t.Run("Should forget the mark when the transaction rolls back", func(t *testing.T) {
		params := repository.MarkEventProcessedParams{Topic: "order.created", EventID: uuid.NewString(), TTL: time.Hour}
		errApply := errors.New("apply failed")

		err := client.WithTx(ctx, func(tx db.DB) error {
			marked, err := repo.WithDB(tx).MarkEventProcessed(ctx, params)
			require.NoError(t, err)
			require.True(t, marked)
			return errApply
		})
		require.ErrorIs(t, err, errApply)

		marked, err := repo.MarkEventProcessed(ctx, params)
		require.NoError(t, err)
		assert.True(t, marked)
	})
}
