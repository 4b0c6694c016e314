package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the delivery lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetrying  Status = "retrying"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRetrying, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the current delivery cycle.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents a delivery channel.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Priority represents the message priority level, ordered low to emergency.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// Rank returns the ordinal position of the priority; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	case PriorityEmergency:
		return 4
	}
	return -1
}

// AtLeast reports whether p is at least as urgent as min.
func (p Priority) AtLeast(min Priority) bool {
	return p.Rank() >= min.Rank()
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Category groups notifications for filtering.
type Category string

const (
	CategorySchedule     Category = "schedule"
	CategoryAvailability Category = "availability"
	CategoryContract     Category = "contract"
	CategoryCompliance   Category = "compliance"
	CategoryLead         Category = "lead"
	CategoryApproval     Category = "approval"
	CategoryEmergency    Category = "emergency"
	CategorySystem       Category = "system"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategorySchedule, CategoryAvailability, CategoryContract, CategoryCompliance,
		CategoryLead, CategoryApproval, CategoryEmergency, CategorySystem:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	cat := Category(strings.ToLower(strings.TrimSpace(s)))
	if !cat.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return cat, nil
}

// Type is the business event kind that produced a notification.
type Type string

const (
	TypeShiftAssigned      Type = "shift_assigned"
	TypeShiftChanged       Type = "shift_changed"
	TypeShiftReminder      Type = "shift_reminder"
	TypeAvailabilityChange Type = "availability_change"
	TypeContractUpdated    Type = "contract_updated"
	TypeComplianceExpiring Type = "compliance_expiring"
	TypeLeadCreated        Type = "lead_created"
	TypeApprovalRequested  Type = "approval_requested"
	TypeApprovalDecided    Type = "approval_decided"
	TypeEmergencyAlert     Type = "emergency_alert"
	TypeSystemMessage      Type = "system_message"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeShiftAssigned, TypeShiftChanged, TypeShiftReminder, TypeAvailabilityChange,
		TypeContractUpdated, TypeComplianceExpiring, TypeLeadCreated,
		TypeApprovalRequested, TypeApprovalDecided, TypeEmergencyAlert, TypeSystemMessage:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	ty := Type(strings.ToLower(strings.TrimSpace(s)))
	if !ty.IsValid() {
		return "", fmt.Errorf("%w: invalid type %q", ErrValidation, s)
	}
	return ty, nil
}

// Notification is the core domain entity: one message destined for one recipient.
type Notification struct {
	ID             string
	RecipientID    string
	SenderID       *string
	Type           Type
	Priority       Priority
	Category       Category
	Title          string
	Message        string
	ActionData     map[string]any
	RelatedType    *string
	RelatedID      *string
	Status         Status
	Channels       []Channel
	IsRead         bool
	ReadAt         *time.Time
	AcknowledgedAt *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (n *Notification) Validate() error {
	if n.RecipientID == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if n.Message == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid type %q", ErrValidation, n.Type)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if !n.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, n.Category)
	}
	if len(n.Channels) == 0 {
		return fmt.Errorf("%w: at least one delivery channel is required", ErrValidation)
	}
	return nil
}

// NormalizeChannels de-duplicates the channel list preserving order and
// defaults to in-app when no channel was requested. Unknown names survive
// normalization; the orchestrator records them as UNKNOWN_CHANNEL failures.
func NormalizeChannels(channels []Channel) []Channel {
	if len(channels) == 0 {
		return []Channel{ChannelInApp}
	}

	seen := make(map[Channel]struct{}, len(channels))
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		normalized := Channel(strings.ToLower(strings.TrimSpace(ch.String())))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	if len(out) == 0 {
		return []Channel{ChannelInApp}
	}
	return out
}

// MarkRead flips the read flag. The transition is one-way: a second call
// leaves read_at untouched.
func (n *Notification) MarkRead(now time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	readAt := now.UTC()
	n.ReadAt = &readAt
}

// IsExpired reports whether the notification has passed its expiry.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// RecipientStats summarizes one recipient's notifications.
type RecipientStats struct {
	Total      int64
	Unread     int64
	Urgent     int64
	Emergency  int64
	ByCategory map[Category]int64
	ByPriority map[Priority]int64
}
