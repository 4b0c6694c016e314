package fanout

import (
	"time"

	"github.com/shiftguard/notify-engine/internal/domain"
)

// Event distinguishes why a notification was published.
type Event string

const (
	EventCreated Event = "created"
	EventUpdated Event = "updated"
)

// Payload is the wire form of a notification on the live fan-out topic.
type Payload struct {
	ID             string           `json:"id"`
	RecipientID    string           `json:"recipientId"`
	SenderID       *string          `json:"senderId,omitempty"`
	Type           domain.Type      `json:"type"`
	Priority       domain.Priority  `json:"priority"`
	Category       domain.Category  `json:"category"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ActionData     map[string]any   `json:"actionData,omitempty"`
	RelatedType    *string          `json:"relatedType,omitempty"`
	RelatedID      *string          `json:"relatedId,omitempty"`
	Status         domain.Status    `json:"status"`
	Channels       []domain.Channel `json:"channels"`
	IsRead         bool             `json:"isRead"`
	ReadAt         *time.Time       `json:"readAt,omitempty"`
	AcknowledgedAt *time.Time       `json:"acknowledgedAt,omitempty"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Envelope wraps the payload with the publish reason.
type Envelope struct {
	Event        Event   `json:"event"`
	Notification Payload `json:"notification"`
}

func PayloadFromDomain(n domain.Notification) Payload {
	return Payload{
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

// Topic returns the per-recipient pub/sub topic.
func Topic(recipientID string) string {
	return "notifications:" + recipientID
}
