package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shiftguard/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// ListParams filters a recipient's notification listing.
type ListParams struct {
	RecipientID string
	Categories  []domain.Category
	Priorities  []domain.Priority
	Unread      *bool
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	MarkRead(ctx context.Context, id string, now time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error)
	Acknowledge(ctx context.Context, id string, now time.Time) (*domain.Notification, error)
	SelectPending(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error)
	Stats(ctx context.Context, recipientID string) (*domain.RecipientStats, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.RecipientID != "" {
		query = query.Where("recipient_id = ?", params.RecipientID)
	}
	if len(params.Categories) > 0 {
		query = query.Where("category IN ?", params.Categories)
	}
	if len(params.Priorities) > 0 {
		query = query.Where("priority IN ?", params.Priorities)
	}
	if params.Unread != nil {
		query = query.Where("is_read = ?", !*params.Unread)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 100)
	offset := max(params.Offset, 0)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

func (r *GormNotificationRepo) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkRead sets the read flag exactly once; repeated calls leave read_at as
// written by the first one.
func (r *GormNotificationRepo) MarkRead(ctx context.Context, id string, now time.Time) (*domain.Notification, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now.UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	return r.GetByID(ctx, id)
}

func (r *GormNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now.UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Acknowledge records the acknowledgment timestamp once and implies read.
func (r *GormNotificationRepo) Acknowledge(ctx context.Context, id string, now time.Time) (*domain.Notification, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Updates(map[string]any{
			"acknowledged_at": now.UTC(),
			"is_read":         true,
			"read_at":         gorm.Expr("COALESCE(read_at, ?)", now.UTC()),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	return r.GetByID(ctx, id)
}

// SelectPending returns the oldest pending notifications, skipping expired
// rows so the drainer never delivers stale messages.
func (r *GormNotificationRepo) SelectPending(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

type groupCount struct {
	Key   string `gorm:"column:key"`
	Count int64  `gorm:"column:count"`
}

func (r *GormNotificationRepo) Stats(ctx context.Context, recipientID string) (*domain.RecipientStats, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&NotificationModel{}).
			Where("recipient_id = ?", recipientID)
	}

	stats := &domain.RecipientStats{
		ByCategory: make(map[domain.Category]int64),
		ByPriority: make(map[domain.Priority]int64),
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_read = ?", false).Count(&stats.Unread).Error; err != nil {
		return nil, err
	}

	var byCategory []groupCount
	err := base().
		Select("category AS key, COUNT(*) AS count").
		Group("category").
		Scan(&byCategory).Error
	if err != nil {
		return nil, err
	}
	for _, row := range byCategory {
		stats.ByCategory[domain.Category(row.Key)] = row.Count
	}

	var byPriority []groupCount
	err = base().
		Select("priority AS key, COUNT(*) AS count").
		Group("priority").
		Scan(&byPriority).Error
	if err != nil {
		return nil, err
	}
	for _, row := range byPriority {
		stats.ByPriority[domain.Priority(row.Key)] = row.Count
	}

	stats.Urgent = stats.ByPriority[domain.PriorityUrgent]
	stats.Emergency = stats.ByPriority[domain.PriorityEmergency]

	return stats, nil
}
