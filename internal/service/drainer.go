package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shiftguard/notify-engine/internal/observability"
	"github.com/shiftguard/notify-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDrainBatchSize   = 100
	defaultDrainInterval    = 15 * time.Second
	defaultDrainConcurrency = 8
)

// QueueDrainer batch-pulls pending notifications oldest-first and pushes them
// through the orchestrator. Safe to invoke repeatedly: the selection only sees
// non-terminal rows.
type QueueDrainer struct {
	notifications repository.NotificationRepository
	orchestrator  *Orchestrator
	logger        *zap.Logger
	metrics       *observability.Metrics
	batchSize     int
	concurrency   int
	interval      time.Duration
	now           func() time.Time
}

func NewQueueDrainer(
	notifications repository.NotificationRepository,
	orchestrator *Orchestrator,
	batchSize int,
	concurrency int,
	interval time.Duration,
	logger *zap.Logger,
) (*QueueDrainer, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if batchSize <= 0 {
		batchSize = defaultDrainBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultDrainConcurrency
	}
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueDrainer{
		notifications: notifications,
		orchestrator:  orchestrator,
		logger:        logger,
		batchSize:     batchSize,
		concurrency:   concurrency,
		interval:      interval,
		now:           time.Now,
	}, nil
}

// SetMetrics attaches the delivery counters; nil metrics are a no-op.
func (d *QueueDrainer) SetMetrics(metrics *observability.Metrics) {
	d.metrics = metrics
}

// ProcessQueue runs one catch-up pass and returns how many notifications were
// delivered in it. Notifications are independent units of work; one failure
// never blocks the rest of the batch.
func (d *QueueDrainer) ProcessQueue(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	pending, err := d.notifications.SelectPending(ctx, d.batchSize, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to select pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var delivered atomic.Int64

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range pending {
		notification := pending[i]
		g.Go(func() error {
			result, err := d.orchestrator.ProcessDelivery(groupCtx, &notification)
			if err != nil {
				d.logger.Error("drainer delivery pass failed",
					zap.String("notificationId", notification.ID),
					zap.Error(err),
				)
				return nil
			}
			if result.Delivered {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	count := int(delivered.Load())
	d.metrics.AddDrainerDelivered(count)
	d.logger.Info("queue drain pass finished",
		zap.Int("selected", len(pending)),
		zap.Int("delivered", count),
	)

	return count, nil
}

// Start drains on a fixed interval until context cancellation, with an
// initial pass so already-pending work does not wait for the first tick.
func (d *QueueDrainer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := d.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("initial queue drain failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.ProcessQueue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Error("queue drain failed", zap.Error(err))
			}
		}
	}
}
