package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/tuanvumaihuynh/product-catalog/internal/config"
	"github.com/tuanvumaihuynh/product-catalog/pkg/outbox"
)

const maxPollRecords = 100

type CleanupFunc func()

type Consumer interface {
	RegisterHandler(topic string, handler HandlerFunc) error
	RegisterHandlers(handlers map[string]HandlerFunc) error
	Run(ctx context.Context) (CleanupFunc, error)
}

var _ Consumer = (*KafkaConsumer)(nil)

// KafkaConsumer polls its consumer group assignment and hands every record to
// a Dispatcher, one at a time. Offsets are committed only for dispatched
// records, so a stop never skips undelivered ones.
type KafkaConsumer struct {
	cl         *kgo.Client
	dispatcher *Dispatcher
	log        *slog.Logger
}

func NewKafkaConsumer(ctx context.Context, cfg config.Kafka, logger *slog.Logger, metrics *Metrics) (*KafkaConsumer, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Addresses...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.Group),
		// Only messages produced after the group first joins; no replay from the beginning.
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.AllowAutoTopicCreation(),
		kgo.WithHooks(newKafkaTracer()),
		kgo.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer pingCancel()
	if err := cl.Ping(pingCtx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}

	logger = logger.With(slog.String("component", "kafka-consumer"))

	return &KafkaConsumer{
		cl:         cl,
		dispatcher: NewDispatcher(logger, metrics),
		log:        logger,
	}, nil
}

// RegisterHandler subscribes to topic. Subscribing twice is rejected.
func (c *KafkaConsumer) RegisterHandler(topic string, handler HandlerFunc) error {
	if err := c.dispatcher.RegisterHandler(topic, handler); err != nil {
		return err
	}

	c.cl.AddConsumeTopics(topic)
	c.log.Info("subscribed to topic", slog.String("topic", topic))
	return nil
}

func (c *KafkaConsumer) RegisterHandlers(handlers map[string]HandlerFunc) error {
	for topic, handler := range handlers {
		if err := c.RegisterHandler(topic, handler); err != nil {
			return fmt.Errorf("register handler for %s: %w", topic, err)
		}
	}
	return nil
}

// Run starts the poll loop. The returned cleanup stops polling, lets the
// in-flight message finish, commits what was handled and waits for the loop.
func (c *KafkaConsumer) Run(ctx context.Context) (CleanupFunc, error) {
	if len(c.dispatcher.Topics()) == 0 {
		return nil, errors.New("no topic handlers registered")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	// Handlers and commits outlive the stop signal so in-flight work completes.
	workCtx := context.WithoutCancel(ctx)
	doneChan := make(chan struct{})

	go func() {
		defer close(doneChan)
		for {
			fetches := c.cl.PollRecords(pollCtx, maxPollRecords)
			if fetches.IsClientClosed() || pollCtx.Err() != nil {
				c.cl.AllowRebalance()
				return
			}

			fetches.EachError(func(topic string, partition int32, err error) {
				c.log.ErrorContext(ctx, "error fetching messages",
					slog.String("topic", topic),
					slog.Int("partition", int(partition)),
					slog.Any("error", err),
				)
			})

			handled := make([]*kgo.Record, 0, fetches.NumRecords())
			for iter := fetches.RecordIter(); !iter.Done(); {
				if pollCtx.Err() != nil {
					break
				}
				rec := iter.Next()
				c.dispatcher.Dispatch(recordContext(workCtx, rec), messageFromRecord(rec))
				handled = append(handled, rec)
			}

			if len(handled) > 0 {
				if err := c.cl.CommitRecords(workCtx, handled...); err != nil {
					c.log.ErrorContext(ctx, "error committing offsets",
						slog.Any("error", err),
					)
				}
			}

			c.cl.AllowRebalance()
		}
	}()

	cleanup := func() {
		cancel()
		<-doneChan
	}

	return cleanup, nil
}

func (c *KafkaConsumer) Close() {
	c.cl.Close()
}

func messageFromRecord(rec *kgo.Record) Message {
	return Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Payload:   rec.Value,
		Headers:   outbox.RecordHeaders(rec),
	}
}

// recordContext carries the producer's trace and correlation id into the handler.
func recordContext(ctx context.Context, rec *kgo.Record) context.Context {
	if rec.Context != nil {
		if span := trace.SpanFromContext(rec.Context); span.SpanContext().IsValid() {
			ctx = trace.ContextWithSpan(ctx, span)
		}
	}
	return outbox.ExtractContextFromHeaders(ctx, outbox.RecordHeaders(rec))
}
