package repository

import (
	"time"

	"github.com/shiftguard/notify-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID             string           `gorm:"type:uuid;primaryKey"`
	RecipientID    string           `gorm:"type:uuid;not null;index:idx_notifications_recipient_created,priority:1"`
	SenderID       *string          `gorm:"type:uuid"`
	Type           domain.Type      `gorm:"type:varchar(40);not null"`
	Priority       domain.Priority  `gorm:"type:varchar(10);not null"`
	Category       domain.Category  `gorm:"type:varchar(20);not null"`
	Title          string           `gorm:"type:varchar(255);not null"`
	Message        string           `gorm:"type:text;not null"`
	ActionData     map[string]any   `gorm:"type:jsonb;serializer:json"`
	RelatedType    *string          `gorm:"type:varchar(40)"`
	RelatedID      *string          `gorm:"type:varchar(64)"`
	Status         domain.Status    `gorm:"type:varchar(20);not null"`
	Channels       []domain.Channel `gorm:"type:jsonb;serializer:json;not null"`
	IsRead         bool             `gorm:"not null;default:false"`
	ReadAt         *time.Time
	AcknowledgedAt *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time `gorm:"index:idx_notifications_recipient_created,priority:2"`
	UpdatedAt      time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts, the
// append-only attempt ledger.
type DeliveryAttemptModel struct {
	ID                string                `gorm:"type:uuid;primaryKey"`
	NotificationID    string                `gorm:"type:uuid;not null"`
	Channel           domain.Channel        `gorm:"type:varchar(10);not null"`
	AttemptNumber     int                   `gorm:"not null"`
	Outcome           domain.AttemptOutcome `gorm:"type:varchar(10);not null"`
	Provider          string                `gorm:"type:varchar(40);not null"`
	ProviderMessageID *string               `gorm:"type:varchar(255)"`
	ErrorCode         *string               `gorm:"type:varchar(40)"`
	ErrorMessage      *string               `gorm:"type:text"`
	DurationMillis    int64                 `gorm:"not null;default:0"`
	AttemptedAt       time.Time             `gorm:"not null"`
	DeliveredAt       *time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// PreferenceModel is the persistence model for notification_preferences.
type PreferenceModel struct {
	RecipientID     string          `gorm:"type:uuid;primaryKey"`
	EmailEnabled    bool            `gorm:"not null;default:true"`
	SMSEnabled      bool            `gorm:"not null;default:false"`
	QuietHoursStart *string         `gorm:"type:varchar(5)"`
	QuietHoursEnd   *string         `gorm:"type:varchar(5)"`
	MinPriority     domain.Priority `gorm:"type:varchar(10);not null;default:'low'"`
	UpdatedAt       time.Time
}

func (PreferenceModel) TableName() string {
	return "notification_preferences"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		SenderID:       n.SenderID,
		Type:           n.Type,
		Priority:       n.Priority,
		Category:       n.Category,
		Title:          n.Title,
		Message:        n.Message,
		ActionData:     n.ActionData,
		RelatedType:    n.RelatedType,
		RelatedID:      n.RelatedID,
		Status:         n.Status,
		Channels:       n.Channels,
		IsRead:         n.IsRead,
		ReadAt:         n.ReadAt,
		AcknowledgedAt: n.AcknowledgedAt,
		ExpiresAt:      n.ExpiresAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:             m.ID,
		RecipientID:    m.RecipientID,
		SenderID:       m.SenderID,
		Type:           m.Type,
		Priority:       m.Priority,
		Category:       m.Category,
		Title:          m.Title,
		Message:        m.Message,
		ActionData:     m.ActionData,
		RelatedType:    m.RelatedType,
		RelatedID:      m.RelatedID,
		Status:         m.Status,
		Channels:       m.Channels,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		AcknowledgedAt: m.AcknowledgedAt,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:                a.ID,
		NotificationID:    a.NotificationID,
		Channel:           a.Channel,
		AttemptNumber:     a.AttemptNumber,
		Outcome:           a.Outcome,
		Provider:          a.Provider,
		ProviderMessageID: a.ProviderMessageID,
		ErrorCode:         a.ErrorCode,
		ErrorMessage:      a.ErrorMessage,
		DurationMillis:    a.DurationMillis,
		AttemptedAt:       a.AttemptedAt,
		DeliveredAt:       a.DeliveredAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:                m.ID,
		NotificationID:    m.NotificationID,
		Channel:           m.Channel,
		AttemptNumber:     m.AttemptNumber,
		Outcome:           m.Outcome,
		Provider:          m.Provider,
		ProviderMessageID: m.ProviderMessageID,
		ErrorCode:         m.ErrorCode,
		ErrorMessage:      m.ErrorMessage,
		DurationMillis:    m.DurationMillis,
		AttemptedAt:       m.AttemptedAt,
		DeliveredAt:       m.DeliveredAt,
	}
}

func preferenceModelToDomain(m *PreferenceModel) *domain.DeliveryPreferences {
	if m == nil {
		return nil
	}

	return &domain.DeliveryPreferences{
		RecipientID:     m.RecipientID,
		EmailEnabled:    m.EmailEnabled,
		SMSEnabled:      m.SMSEnabled,
		QuietHoursStart: m.QuietHoursStart,
		QuietHoursEnd:   m.QuietHoursEnd,
		MinPriority:     m.MinPriority,
		UpdatedAt:       m.UpdatedAt,
	}
}
