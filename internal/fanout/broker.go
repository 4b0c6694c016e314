package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shiftguard/notify-engine/internal/domain"
	"go.uber.org/zap"
)

// Publisher pushes notifications to connected clients on per-recipient topics.
type Publisher interface {
	Publish(ctx context.Context, event Event, n domain.Notification) error
}

// Handler receives one live notification envelope.
type Handler func(envelope Envelope)

// Subscriber attaches a handler to a recipient's topic. The returned func
// detaches it.
type Subscriber interface {
	Subscribe(ctx context.Context, recipientID string, fn Handler) (func(), error)
}

// RedisBroker implements Publisher and Subscriber over redis pub/sub. The
// redis client is owned by the caller.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBroker(client *redis.Client, logger *zap.Logger) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisBroker{
		client: client,
		logger: logger,
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, event Event, n domain.Notification) error {
	envelope := Envelope{
		Event:        event,
		Notification: PayloadFromDomain(n),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal fanout envelope: %w", err)
	}

	if err := b.client.Publish(ctx, Topic(n.RecipientID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", Topic(n.RecipientID), err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, recipientID string, fn Handler) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("handler is required")
	}

	pubsub := b.client.Subscribe(ctx, Topic(recipientID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Topic(recipientID), err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				b.logger.Warn("dropping malformed fanout message",
					zap.String("topic", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			fn(envelope)
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("failed to close subscription",
				zap.String("recipientId", recipientID),
				zap.Error(err),
			)
		}
	}, nil
}
