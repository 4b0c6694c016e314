package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shiftguard/notify-engine/internal/domain"
	"github.com/shiftguard/notify-engine/internal/fanout"
	"github.com/shiftguard/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// CreateRequest is a producer's request to create and deliver a notification.
type CreateRequest struct {
	RecipientID string
	SenderID    *string
	Type        string
	Priority    string
	Category    string
	Title       string
	Message     string
	Channels    []string
	ActionData  map[string]any
	RelatedType *string
	RelatedID   *string
	ExpiresAt   *time.Time
}

// NotificationService is the exposed surface for producers and readers.
type NotificationService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	orchestrator  *Orchestrator
	retries       *RetryController
	analytics     *AnalyticsAggregator
	publisher     fanout.Publisher
	subscriber    fanout.Subscriber
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	orchestrator *Orchestrator,
	retries *RetryController,
	analytics *AnalyticsAggregator,
	publisher fanout.Publisher,
	subscriber fanout.Subscriber,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if retries == nil {
		return nil, fmt.Errorf("retry controller is required")
	}
	if analytics == nil {
		return nil, fmt.Errorf("analytics aggregator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		attempts:      attempts,
		orchestrator:  orchestrator,
		retries:       retries,
		analytics:     analytics,
		publisher:     publisher,
		subscriber:    subscriber,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Create persists a notification and runs its first delivery pass. The
// returned notification carries the status reached by that pass.
func (s *NotificationService) Create(ctx context.Context, req CreateRequest) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	notification, err := notificationFromCreateRequest(req, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("%w: failed to insert notification: %v", domain.ErrStore, err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, fanout.EventCreated, *notification); err != nil {
			s.logger.Warn("failed to publish created notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
		}
	}

	if _, err := s.orchestrator.ProcessDelivery(ctx, notification); err != nil {
		return nil, err
	}

	return notification, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if strings.TrimSpace(params.RecipientID) == "" {
		return nil, 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.List(ctx, params)
}

// MarkRead is idempotent: the second call returns the notification unchanged.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	notification, err := s.notifications.MarkRead(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, *notification)
	return notification, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.MarkAllRead(ctx, recipientID, s.now())
}

func (s *NotificationService) Acknowledge(ctx context.Context, id string) (*domain.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	notification, err := s.notifications.Acknowledge(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, *notification)
	return notification, nil
}

func (s *NotificationService) Stats(ctx context.Context, recipientID string) (*domain.RecipientStats, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.Stats(ctx, recipientID)
}

// Retry re-runs delivery for a non-delivered notification while retry budget
// remains; beyond the budget it returns ErrMaxRetries without touching the
// ledger.
func (s *NotificationService) Retry(ctx context.Context, id string) (*DeliveryResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	notification, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification.Status == domain.StatusDelivered {
		return nil, fmt.Errorf("%w: notification %s is already delivered", domain.ErrConflict, id)
	}
	if err := s.retries.CheckBudget(id); err != nil {
		return nil, err
	}

	return s.orchestrator.ProcessDelivery(ctx, notification)
}

// DeliveryHistory returns the ledger entries for one notification.
func (s *NotificationService) DeliveryHistory(ctx context.Context, id string) ([]domain.DeliveryAttempt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	if _, err := s.notifications.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.attempts.GetByNotificationID(ctx, id)
}

func (s *NotificationService) Analytics(ctx context.Context, from, to time.Time) (*DeliveryAnalytics, error) {
	return s.analytics.Compute(ctx, from, to)
}

// Subscribe attaches a live handler to the recipient's fan-out topic and
// returns the unsubscribe handle.
func (s *NotificationService) Subscribe(ctx context.Context, recipientID string, fn fanout.Handler) (func(), error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	if s.subscriber == nil {
		return nil, fmt.Errorf("live fan-out is not configured")
	}
	return s.subscriber.Subscribe(ctx, recipientID, fn)
}

func (s *NotificationService) publishUpdated(ctx context.Context, n domain.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, fanout.EventUpdated, n); err != nil {
		s.logger.Warn("failed to publish notification update",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func notificationFromCreateRequest(req CreateRequest, now time.Time) (*domain.Notification, error) {
	notificationType, err := domain.ParseTypeFromString(req.Type)
	if err != nil {
		return nil, err
	}

	priority := domain.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		priority, err = domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return nil, err
		}
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return nil, err
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		channels = append(channels, domain.Channel(raw))
	}

	notification := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: strings.TrimSpace(req.RecipientID),
		SenderID:    normalizeOptionalString(req.SenderID),
		Type:        notificationType,
		Priority:    priority,
		Category:    category,
		Title:       strings.TrimSpace(req.Title),
		Message:     strings.TrimSpace(req.Message),
		ActionData:  req.ActionData,
		RelatedType: normalizeOptionalString(req.RelatedType),
		RelatedID:   normalizeOptionalString(req.RelatedID),
		Status:      domain.StatusPending,
		Channels:    domain.NormalizeChannels(channels),
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := notification.Validate(); err != nil {
		return nil, err
	}

	return notification, nil
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
