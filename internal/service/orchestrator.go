package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shiftguard/notify-engine/internal/channel"
	"github.com/shiftguard/notify-engine/internal/domain"
	"github.com/shiftguard/notify-engine/internal/fanout"
	"github.com/shiftguard/notify-engine/internal/observability"
	"github.com/shiftguard/notify-engine/internal/ratelimit"
	"github.com/shiftguard/notify-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultChannelTimeout = 10 * time.Second

// ChannelOutcome is the per-channel result of one orchestration pass.
type ChannelOutcome struct {
	Channel           domain.Channel
	Success           bool
	Provider          string
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
	Duration          time.Duration
	AttemptNumber     int
}

// DeliveryResult aggregates one orchestration pass over all requested channels.
type DeliveryResult struct {
	NotificationID string
	Pass           int
	Status         domain.Status
	Delivered      bool
	Outcomes       []ChannelOutcome
}

// Orchestrator fans a notification out to its requested channels, reduces the
// per-channel outcomes to one overall status, and appends the ledger entries.
type Orchestrator struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	preferences   repository.PreferenceRepository
	registry      *channel.Registry
	retries       *RetryController
	publisher     fanout.Publisher
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	timeout       time.Duration
	now           func() time.Time
}

func NewOrchestrator(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	preferences repository.PreferenceRepository,
	registry *channel.Registry,
	retries *RetryController,
	publisher fanout.Publisher,
	rateLimiter ratelimit.RateLimiter,
	timeout time.Duration,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("channel registry is required")
	}
	if retries == nil {
		return nil, fmt.Errorf("retry controller is required")
	}
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		notifications: notifications,
		attempts:      attempts,
		preferences:   preferences,
		registry:      registry,
		retries:       retries,
		publisher:     publisher,
		rateLimiter:   rateLimiter,
		logger:        logger,
		timeout:       timeout,
		now:           time.Now,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// ProcessDelivery runs one orchestration pass: all requested channels are
// attempted concurrently and independently, every outcome lands in the ledger,
// and the notification status advances per the retry budget. Passes for the
// same notification are serialized so attempt numbering stays monotonic.
func (o *Orchestrator) ProcessDelivery(ctx context.Context, n *domain.Notification) (*DeliveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if n == nil {
		return nil, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	unlock := o.retries.LockPass(n.ID)
	defer unlock()

	channels := domain.NormalizeChannels(n.Channels)
	prefs := o.loadPreferences(ctx, n.RecipientID)

	outcomes := make([]ChannelOutcome, len(channels))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		g.Go(func() error {
			outcomes[i] = o.deliverChannel(groupCtx, *n, ch, prefs)
			return nil
		})
	}
	// Goroutines never return errors; the group is only the join point. All
	// channels must finish before the overall outcome is computed so every
	// ledger entry gets written.
	_ = g.Wait()

	pass := o.retries.RecordAttempt(n.ID)

	delivered := false
	for i := range outcomes {
		o.appendLedgerEntry(ctx, n.ID, &outcomes[i])
		if outcomes[i].Success {
			delivered = true
		}
		o.observeOutcome(outcomes[i])
	}

	status := o.nextStatus(n.ID, delivered)
	if err := o.notifications.UpdateStatus(ctx, n.ID, status); err != nil {
		// Ledger entries already written are the audit source of truth and
		// stand even when the status write fails.
		o.logger.Error("failed to update notification status after delivery pass",
			zap.String("notificationId", n.ID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
	n.Status = status

	o.publishUpdate(ctx, *n)

	return &DeliveryResult{
		NotificationID: n.ID,
		Pass:           pass,
		Status:         status,
		Delivered:      delivered,
		Outcomes:       outcomes,
	}, nil
}

func (o *Orchestrator) loadPreferences(ctx context.Context, recipientID string) *domain.DeliveryPreferences {
	if o.preferences == nil {
		return nil
	}

	prefs, err := o.preferences.Get(ctx, recipientID)
	if err != nil {
		// A preference read failure must not block delivery; fall back to
		// allow-all.
		o.logger.Warn("failed to load delivery preferences",
			zap.String("recipientId", recipientID),
			zap.Error(err),
		)
		return nil
	}
	return prefs
}

func (o *Orchestrator) deliverChannel(
	ctx context.Context,
	n domain.Notification,
	ch domain.Channel,
	prefs *domain.DeliveryPreferences,
) ChannelOutcome {
	outcome := ChannelOutcome{Channel: ch}
	start := o.now()

	adapter, ok := o.registry.Resolve(ch)
	if !ok {
		outcome.ErrorCode = channel.CodeUnknownChannel
		outcome.ErrorMessage = fmt.Sprintf("no adapter registered for channel %q", ch)
		outcome.Duration = o.now().Sub(start)
		return outcome
	}
	outcome.Provider = adapter.Provider()

	if !prefs.AllowsChannel(ch, n.Priority, start) {
		outcome.ErrorCode = channel.CodeChannelDisabled
		outcome.ErrorMessage = "suppressed by recipient delivery preferences"
		outcome.Duration = o.now().Sub(start)
		return outcome
	}

	if o.rateLimiter != nil && ch != domain.ChannelInApp {
		if err := o.rateLimiter.Wait(ctx, ch.String()); err != nil {
			outcome.ErrorCode = channel.CodeTransportError
			outcome.ErrorMessage = fmt.Sprintf("rate limiter wait failed: %v", err)
			outcome.Duration = o.now().Sub(start)
			return outcome
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	receipt, err := safeDeliver(callCtx, adapter, n)
	outcome.Duration = o.now().Sub(start)

	if err != nil {
		code, message := classifyChannelError(err)
		outcome.ErrorCode = code
		outcome.ErrorMessage = message
		return outcome
	}

	outcome.Success = true
	if receipt != nil {
		outcome.ProviderMessageID = receipt.MessageID
	}
	return outcome
}

// safeDeliver converts adapter panics into failed outcomes so one channel
// cannot take down the others in the same pass.
func safeDeliver(ctx context.Context, adapter channel.Adapter, n domain.Notification) (receipt *channel.Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			receipt = nil
			err = &channel.Error{
				Code:    channel.CodeTransportError,
				Message: fmt.Sprintf("adapter panic: %v", r),
			}
		}
	}()

	return adapter.Deliver(ctx, n)
}

func classifyChannelError(err error) (code string, message string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return channel.CodeTimeout, "channel delivery timed out"
	}

	var chErr *channel.Error
	if errors.As(err, &chErr) {
		return chErr.Code, chErr.Error()
	}

	return channel.CodeTransportError, err.Error()
}

// appendLedgerEntry writes one immutable attempt record. The attempt number
// is the prior max for the notification+channel pair plus one, read under the
// per-notification pass lock.
func (o *Orchestrator) appendLedgerEntry(ctx context.Context, notificationID string, outcome *ChannelOutcome) {
	prior, err := o.attempts.MaxAttemptNumber(ctx, notificationID, outcome.Channel)
	if err != nil {
		o.logger.Error("failed to read prior attempt number",
			zap.String("notificationId", notificationID),
			zap.String("channel", outcome.Channel.String()),
			zap.Error(err),
		)
		prior = 0
	}
	outcome.AttemptNumber = prior + 1

	attemptedAt := o.now().UTC()
	entry := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Channel:        outcome.Channel,
		AttemptNumber:  outcome.AttemptNumber,
		Outcome:        domain.OutcomeFailed,
		Provider:       outcome.Provider,
		DurationMillis: outcome.Duration.Milliseconds(),
		AttemptedAt:    attemptedAt,
	}
	if outcome.Success {
		entry.Outcome = domain.OutcomeDelivered
		deliveredAt := attemptedAt
		entry.DeliveredAt = &deliveredAt
	}
	if outcome.ProviderMessageID != "" {
		value := outcome.ProviderMessageID
		entry.ProviderMessageID = &value
	}
	if outcome.ErrorCode != "" {
		value := outcome.ErrorCode
		entry.ErrorCode = &value
	}
	if outcome.ErrorMessage != "" {
		value := outcome.ErrorMessage
		entry.ErrorMessage = &value
	}

	if err := o.attempts.Create(ctx, entry); err != nil {
		o.logger.Error("failed to append delivery attempt to ledger",
			zap.String("notificationId", notificationID),
			zap.String("channel", outcome.Channel.String()),
			zap.Int("attemptNumber", outcome.AttemptNumber),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) nextStatus(notificationID string, delivered bool) domain.Status {
	if delivered {
		o.retries.Forget(notificationID)
		return domain.StatusDelivered
	}
	if o.retries.ShouldRetry(notificationID) {
		if o.metrics != nil {
			o.metrics.IncRetryScheduled()
		}
		return domain.StatusRetrying
	}
	// The exhausted counter is kept so a later retry request is rejected
	// with ErrMaxRetries instead of starting a fresh budget.
	return domain.StatusFailed
}

func (o *Orchestrator) publishUpdate(ctx context.Context, n domain.Notification) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, fanout.EventUpdated, n); err != nil {
		o.logger.Warn("failed to publish notification update",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) observeOutcome(outcome ChannelOutcome) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveChannelDeliveryDuration(outcome.Channel.String(), outcome.Duration)
	if outcome.Success {
		o.metrics.IncChannelDelivered(outcome.Channel.String())
		return
	}
	o.metrics.IncChannelFailed(outcome.Channel.String(), outcome.ErrorCode)
}
