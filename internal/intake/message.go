package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/shiftguard/notify-engine/internal/service"
)

// BusinessEvent is the broker payload produced by the rest of the platform
// (scheduling, contracts, compliance, approvals) when something notable
// happens to a recipient.
type BusinessEvent struct {
	EventID     string         `json:"eventId"`
	Kind        string         `json:"kind"`
	RecipientID string         `json:"recipientId"`
	SenderID    *string        `json:"senderId,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Channels    []string       `json:"channels,omitempty"`
	ActionData  map[string]any `json:"actionData,omitempty"`
	RelatedType *string        `json:"relatedType,omitempty"`
	RelatedID   *string        `json:"relatedId,omitempty"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

func (e BusinessEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if strings.TrimSpace(e.Kind) == "" {
		return fmt.Errorf("kind is required")
	}
	if strings.TrimSpace(e.RecipientID) == "" {
		return fmt.Errorf("recipientId is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// ToCreateRequest maps the event onto the notification create surface. Field
// validation beyond presence happens there.
func (e BusinessEvent) ToCreateRequest() service.CreateRequest {
	return service.CreateRequest{
		RecipientID: strings.TrimSpace(e.RecipientID),
		SenderID:    e.SenderID,
		Type:        strings.TrimSpace(e.Kind),
		Priority:    strings.TrimSpace(e.Priority),
		Category:    strings.TrimSpace(e.Category),
		Title:       strings.TrimSpace(e.Title),
		Message:     strings.TrimSpace(e.Message),
		Channels:    e.Channels,
		ActionData:  e.ActionData,
		RelatedType: e.RelatedType,
		RelatedID:   e.RelatedID,
		ExpiresAt:   e.ExpiresAt,
	}
}
