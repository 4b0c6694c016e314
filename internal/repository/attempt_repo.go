package repository

import (
	"context"
	"time"

	"github.com/shiftguard/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository is the append-only delivery ledger. There is deliberately
// no update or delete.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DeliveryAttempt) error
	GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
	MaxAttemptNumber(ctx context.Context, notificationID string, channel domain.Channel) (int, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.DeliveryAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("channel ASC, attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

// MaxAttemptNumber returns the highest recorded attempt number for a
// notification+channel pair, zero when none exists. The orchestrator reads
// this before appending so attempt numbers stay gapless per pair.
func (r *GormAttemptRepo) MaxAttemptNumber(ctx context.Context, notificationID string, channel domain.Channel) (int, error) {
	var maxNumber *int
	err := r.db.WithContext(ctx).
		Model(&DeliveryAttemptModel{}).
		Select("MAX(attempt_number)").
		Where("notification_id = ? AND channel = ?", notificationID, channel).
		Scan(&maxNumber).Error
	if err != nil {
		return 0, err
	}
	if maxNumber == nil {
		return 0, nil
	}
	return *maxNumber, nil
}

// ListBetween returns ledger entries with attempted_at inside the inclusive range.
func (r *GormAttemptRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.DeliveryAttempt, error) {
	var models []DeliveryAttemptModel
	err := r.db.WithContext(ctx).
		Where("attempted_at >= ? AND attempted_at <= ?", from, to).
		Order("attempted_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
