package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// ErrMalformedEvent marks payloads that no retry can apply. Such events are
// recorded and skipped; any other handler error is retried in place.
var ErrMalformedEvent = errors.New("malformed event")

// Inbox drops redeliveries. Seen reports whether an id was already applied;
// Record marks it applied and reports false for an id it has seen.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	backoff func(attempt int) time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		backoff: retryBackoff,
	}
}

// retryBackoff doubles from one second up to thirty.
func retryBackoff(attempt int) time.Duration {
	d := time.Second << min(attempt, 5)
	return min(d, 30*time.Second)
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		if !c.apply(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// apply retries msg until it is processed. It returns false only when ctx
// ends first, in which case the offset stays uncommitted.
func (c *Consumer) apply(ctx context.Context, msg kafka.Message) bool {
	for attempt := 0; ; attempt++ {
		err := c.process(ctx, msg)
		if err == nil {
			return true
		}
		c.logger.Warn("event not applied; retrying",
			"err", err,
			"topic", msg.Topic,
			"offset", msg.Offset,
			"attempt", attempt+1,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff(attempt)):
		}
	}
}

// process handles one message. The event id is written to the inbox only once
// the handler has succeeded, so a failed apply is seen again on retry.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "" {
		seen, err := c.inbox.Seen(ctxSpan, meta.EventID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("inbox lookup: %w", err)
		}
		if seen {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrMalformedEvent) {
			return err
		}
		c.logger.Error("dropping malformed event", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	}

	if meta.EventID != "" {
		if _, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType); err != nil {
			// The upsert already landed; a redelivery reapplies the same state.
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
	}
	return nil
}
