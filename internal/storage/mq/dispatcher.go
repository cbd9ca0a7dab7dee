package mq

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	applog "github.com/tuanvumaihuynh/product-catalog/internal/log"
)

// Message is one broker delivery.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Payload   []byte
	Headers   map[string]string
}

type HandlerFunc func(ctx context.Context, msg Message) error

// Result is the outcome of dispatching one message.
type Result string

const (
	ResultHandled   Result = "handled"
	ResultFailed    Result = "failed"
	ResultPanicked  Result = "panicked"
	ResultUnhandled Result = "unhandled"
)

// Dispatcher routes messages to the handler registered for their topic.
// A failing, panicking or missing handler is logged and the message dropped;
// Dispatch never returns an error and never retries.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *slog.Logger
	metrics  *Metrics
}

func NewDispatcher(logger *slog.Logger, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		log:      logger,
		metrics:  metrics,
	}
}

func (d *Dispatcher) RegisterHandler(topic string, handler HandlerFunc) error {
	if topic == "" {
		return fmt.Errorf("empty topic")
	}
	if handler == nil {
		return fmt.Errorf("nil handler for topic %s", topic)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[topic]; exists {
		return fmt.Errorf("handler for topic %s already registered", topic)
	}
	d.handlers[topic] = handler
	return nil
}

// Topics returns the registered topics in sorted order.
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	topics := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (res Result) {
	ctx, span := tracer.Start(ctx, "mq.Dispatch", trace.WithAttributes(
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int("messaging.kafka.partition", int(msg.Partition)),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	), trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	// handlers log through ctx, so their records carry the delivery too
	ctx = applog.WithAttrs(ctx,
		slog.String("topic", msg.Topic),
		slog.Int("partition", int(msg.Partition)),
		slog.Int64("offset", msg.Offset),
		slog.String("key", string(msg.Key)),
	)
	log := d.log

	start := time.Now()
	defer func() {
		d.metrics.observe(msg.Topic, res, time.Since(start))
	}()

	d.mu.RLock()
	fn, exists := d.handlers[msg.Topic]
	d.mu.RUnlock()
	if !exists {
		log.WarnContext(ctx, "no handler registered for topic")
		return ResultUnhandled
	}

	defer func() {
		if rvr := recover(); rvr != nil {
			span.RecordError(fmt.Errorf("panic: %v", rvr))
			span.SetStatus(codes.Error, "panic in handler")

			log.ErrorContext(ctx, "panic in message handler",
				slog.Any("recover", rvr),
				slog.String("stack", string(debug.Stack())),
			)
			res = ResultPanicked
		}
	}()

	if err := fn(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")

		log.ErrorContext(ctx, "error handling message", slog.Any("error", err))
		return ResultFailed
	}

	return ResultHandled
}
