package event_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/product-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/product-catalog/internal/config"
	"github.com/tuanvumaihuynh/product-catalog/internal/event"
	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/stock"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/mq"
	"github.com/tuanvumaihuynh/product-catalog/pkg/validator"
)

type appliedDelta struct {
	productID uuid.UUID
	delta     int
}

// fakeStock marks an event processed only once its delta is applied, like the
// stock engine does inside one transaction. panics makes the next calls panic
// before anything is recorded.
type fakeStock struct {
	mu        sync.Mutex
	applied   []appliedDelta
	processed map[string]bool
	err       error
	panics    int
}

func (f *fakeStock) ApplyDelta(_ context.Context, productID uuid.UUID, delta int) (model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(productID, delta)
}

func (f *fakeStock) ApplyEventDelta(_ context.Context, ev stock.ProcessedEvent, productID uuid.UUID, delta int) (model.Product, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ev.Topic + "/" + ev.ID
	if f.processed[key] {
		return model.Product{}, false, nil
	}
	product, err := f.apply(productID, delta)
	if err != nil {
		return model.Product{}, false, err
	}
	if f.processed == nil {
		f.processed = map[string]bool{}
	}
	f.processed[key] = true
	return product, true, nil
}

func (f *fakeStock) apply(productID uuid.UUID, delta int) (model.Product, error) {
	if f.panics > 0 {
		f.panics--
		panic("stock store crashed")
	}
	if f.err != nil {
		return model.Product{}, f.err
	}
	f.applied = append(f.applied, appliedDelta{productID: productID, delta: delta})
	return model.Product{ID: productID, AvailableStock: delta}, nil
}

func (f *fakeStock) isProcessed(topic, eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[topic+"/"+eventID]
}

func (f *fakeStock) deltas() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.applied))
	for _, a := range f.applied {
		out = append(out, a.delta)
	}
	return out
}

type fakeConsumer struct {
	handlers map[string]mq.HandlerFunc
	ran      bool
	stopped  bool
}

func (f *fakeConsumer) RegisterHandler(topic string, handler mq.HandlerFunc) error {
	if f.handlers == nil {
		f.handlers = map[string]mq.HandlerFunc{}
	}
	if _, ok := f.handlers[topic]; ok {
		return errors.New("duplicate topic")
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeConsumer) RegisterHandlers(handlers map[string]mq.HandlerFunc) error {
	for topic, h := range handlers {
		if err := f.RegisterHandler(topic, h); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeConsumer) Run(context.Context) (mq.CleanupFunc, error) {
	f.ran = true
	return func() { f.stopped = true }, nil
}

type fixture struct {
	svc      *event.Service
	cfg      config.Event
	stock    *fakeStock
	consumer *fakeConsumer
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	v, err := validator.NewDefaultValidator()
	require.NoError(t, err)

	cfg := config.Event{
		TopicOrderCreated:   "order.created",
		TopicOrderCancelled: "order.cancelled",
		DedupTTL:            time.Hour,
	}
	stock := &fakeStock{}
	consumer := &fakeConsumer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return fixture{
		svc:      event.New(cfg, logger, consumer, stock, v),
		cfg:      cfg,
		stock:    stock,
		consumer: consumer,
	}
}

func (f fixture) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	h, ok := f.svc.Handlers()[topic]
	require.True(t, ok, "no handler for %s", topic)
	return h(context.Background(), mq.Message{Topic: topic, Payload: []byte(payload)})
}

func TestOrderEvents(t *testing.T) {
	productID := uuid.New()

	t.Run("Should reserve stock on order created", func(t *testing.T) {
		f := newFixture(t)

		err := f.deliver(t, "order.created", `{"productId":"`+productID.String()+`","quantity":3}`)
		require.NoError(t, err)
		assert.Equal(t, []int{-3}, f.stock.deltas())
		assert.Equal(t, productID, f.stock.applied[0].productID)
	})

	t.Run("Should release stock on order cancelled", func(t *testing.T) {
		f := newFixture(t)

		err := f.deliver(t, "order.cancelled", `{"productId":"`+productID.String()+`","quantity":2}`)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, f.stock.deltas())
	})

	t.Run("Should reject malformed payloads without touching stock", func(t *testing.T) {
		payloads := []string{
			`{"productId":123}`,
			`{"productId":"` + productID.String() + `"}`,
			`{"productId":"` + productID.String() + `","quantity":0}`,
			`{"productId":"` + productID.String() + `","quantity":-1}`,
			`{"productId":"` + productID.String() + `","quantity":1.5}`,
			`{"productId":"not-a-uuid","quantity":1}`,
			`{"productId":"` + productID.String() + `","quantity":1,"extra":true}`,
			`not json`,
			`{"productId":"` + productID.String() + `","quantity":1} garbage`,
			`{"productId":"` + productID.String() + `","quantity":1}{"productId":"` + productID.String() + `","quantity":1}`,
		}

		for _, payload := range payloads {
			f := newFixture(t)
			err := f.deliver(t, "order.created", payload)
			assert.ErrorIs(t, err, apperr.MalformedEventErr, payload)
			assert.Empty(t, f.stock.deltas(), payload)
		}
	})

	t.Run("Should apply a repeated event id once", func(t *testing.T) {
		f := newFixture(t)
		payload := `{"productId":"` + productID.String() + `","quantity":1,"eventId":"evt-1"}`

		require.NoError(t, f.deliver(t, "order.created", payload))
		require.NoError(t, f.deliver(t, "order.created", payload))
		assert.Equal(t, []int{-1}, f.stock.deltas())
		assert.True(t, f.stock.isProcessed("order.created", "evt-1"))
	})

	t.Run("Should scope event ids per topic", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.deliver(t, "order.created", `{"productId":"`+productID.String()+`","quantity":1,"eventId":"evt-2"}`))
		require.NoError(t, f.deliver(t, "order.cancelled", `{"productId":"`+productID.String()+`","quantity":1,"eventId":"evt-2"}`))
		assert.Equal(t, []int{-1, 1}, f.stock.deltas())
	})

	t.Run("Should apply every delivery without an event id", func(t *testing.T) {
		f := newFixture(t)
		payload := `{"productId":"` + productID.String() + `","quantity":1}`

		require.NoError(t, f.deliver(t, "order.created", payload))
		require.NoError(t, f.deliver(t, "order.created", payload))
		assert.Equal(t, []int{-1, -1}, f.stock.deltas())
	})

	t.Run("Should leave the event unprocessed when the stock change fails", func(t *testing.T) {
		f := newFixture(t)
		f.stock.err = apperr.ProductNotFoundErr
		payload := `{"productId":"` + productID.String() + `","quantity":1,"eventId":"evt-3"}`

		err := f.deliver(t, "order.created", payload)
		assert.ErrorIs(t, err, apperr.ProductNotFoundErr)
		assert.False(t, f.stock.isProcessed("order.created", "evt-3"))

		f.stock.err = nil
		require.NoError(t, f.deliver(t, "order.created", payload))
		assert.Equal(t, []int{-1}, f.stock.deltas())
	})

	t.Run("Should apply a redelivery after the first attempt panicked", func(t *testing.T) {
		f := newFixture(t)
		f.stock.panics = 1

		d := mq.NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
		for topic, h := range f.svc.Handlers() {
			require.NoError(t, d.RegisterHandler(topic, h))
		}
		msg := mq.Message{
			Topic:   "order.created",
			Payload: []byte(`{"productId":"` + productID.String() + `","quantity":2,"eventId":"e1"}`),
		}

		assert.Equal(t, mq.ResultPanicked, d.Dispatch(context.Background(), msg))
		assert.False(t, f.stock.isProcessed("order.created", "e1"))

		assert.Equal(t, mq.ResultHandled, d.Dispatch(context.Background(), msg))
		assert.Equal(t, []int{-2}, f.stock.deltas())
		assert.True(t, f.stock.isProcessed("order.created", "e1"))
	})

	t.Run("Should apply every delivery when dedup is disabled", func(t *testing.T) {
		f := newFixture(t)
		svc := event.New(config.Event{
			TopicOrderCreated:   "order.created",
			TopicOrderCancelled: "order.cancelled",
		}, slog.New(slog.NewTextHandler(io.Discard, nil)), f.consumer, f.stock, mustValidator(t))
		payload := []byte(`{"productId":"` + productID.String() + `","quantity":1,"eventId":"evt-5"}`)

		h := svc.Handlers()["order.created"]
		require.NoError(t, h(context.Background(), mq.Message{Topic: "order.created", Payload: payload}))
		require.NoError(t, h(context.Background(), mq.Message{Topic: "order.created", Payload: payload}))
		assert.Equal(t, []int{-1, -1}, f.stock.deltas())
	})
}

func mustValidator(t *testing.T) validator.Validator {
	t.Helper()
	v, err := validator.NewDefaultValidator()
	require.NoError(t, err)
	return v
}

func TestServiceRun(t *testing.T) {
	t.Run("Should register both order topics and start the consumer", func(t *testing.T) {
		f := newFixture(t)

		cleanup, err := f.svc.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, f.consumer.ran)
		assert.Len(t, f.consumer.handlers, 2)
		assert.Contains(t, f.consumer.handlers, "order.created")
		assert.Contains(t, f.consumer.handlers, "order.cancelled")

		cleanup()
		assert.True(t, f.consumer.stopped)
	})

	t.Run("Should refuse identical order topics", func(t *testing.T) {
		consumer := &fakeConsumer{}
		svc := event.New(
			config.Event{TopicOrderCreated: "orders", TopicOrderCancelled: "orders"},
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			consumer, &fakeStock{}, mustValidator(t),
		)

		_, err := svc.Run(context.Background())
		require.Error(t, err)
		assert.False(t, consumer.ran)
	})
}
