package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shiftguard/notify-engine/internal/domain"
	"github.com/shiftguard/notify-engine/internal/observability"
	"github.com/shiftguard/notify-engine/internal/service"
	"go.uber.org/zap"
)

const (
	// EventQueue carries business events from the rest of the platform.
	EventQueue = "notifications.events"
	// EventDLQ receives events that could never become a notification.
	EventDLQ = "notifications.events.dlq"

	dlxExchangeName  = "notify.dlx"
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// Creator is the slice of the notification service the consumer needs.
type Creator interface {
	Create(ctx context.Context, req service.CreateRequest) (*domain.Notification, error)
}

// Consumer turns platform business events into notifications. It reconnects
// with exponential backoff when the broker connection drops.
type Consumer struct {
	url      string
	creator  Creator
	prefetch int
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewConsumer(url string, creator Creator, prefetch int, logger *zap.Logger) (*Consumer, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if creator == nil {
		return nil, fmt.Errorf("notification creator is required")
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consumer{
		url:      url,
		creator:  creator,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// Start consumes the event queue until context cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Warn("event intake interrupted", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(EventQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", EventQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	var event BusinessEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.Warn("rejecting event: invalid JSON", zap.Error(err))
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid event: %w", rejectErr)
		}
		return nil
	}

	if err := event.Validate(); err != nil {
		c.logger.Warn("rejecting event: validation failed",
			zap.String("eventId", event.EventID),
			zap.Error(err),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid event: %w", rejectErr)
		}
		return nil
	}

	ctx = observability.WithCorrelationID(ctx, event.EventID)
	log := observability.WithContextLogger(c.logger, ctx)

	notification, err := c.creator.Create(ctx, event.ToCreateRequest())
	if err != nil {
		// Malformed events can never succeed; dead-letter them. Store
		// trouble is worth another delivery attempt.
		if errors.Is(err, domain.ErrValidation) {
			log.Warn("rejecting event: unprocessable", zap.Error(err))
			if rejectErr := d.Reject(false); rejectErr != nil {
				return fmt.Errorf("failed to reject unprocessable event: %w", rejectErr)
			}
			return nil
		}

		log.Error("failed to create notification from event", zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("create failed and nack failed: %w", nackErr)
		}
		return nil
	}

	log.Info("event converted to notification",
		zap.String("notificationId", notification.ID),
	)

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack event: %w", err)
	}
	return nil
}

func (c *Consumer) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
		}
		c.conn = conn
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(EventDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", EventDLQ, err)
	}
	if err := ch.QueueBind(EventDLQ, EventQueue, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", EventDLQ, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": EventQueue,
	}
	if _, err := ch.QueueDeclare(EventQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", EventQueue, err)
	}

	return nil
}
