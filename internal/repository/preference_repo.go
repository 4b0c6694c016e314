package repository

import (
	"context"
	"errors"

	"github.com/shiftguard/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// PreferenceRepository reads per-recipient delivery preferences. The rows are
// written by the staffing platform's profile service; this engine only reads
// them. Get returns (nil, nil) when the recipient has no stored preferences;
// the orchestrator treats that as allow-all.
type PreferenceRepository interface {
	Get(ctx context.Context, recipientID string) (*domain.DeliveryPreferences, error)
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) Get(ctx context.Context, recipientID string) (*domain.DeliveryPreferences, error) {
	var model PreferenceModel
	err := r.db.WithContext(ctx).First(&model, "recipient_id = ?", recipientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return preferenceModelToDomain(&model), nil
}
