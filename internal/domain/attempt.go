package domain

import "time"

// AttemptOutcome is the result of one delivery try on one channel.
type AttemptOutcome string

const (
	OutcomeDelivered AttemptOutcome = "delivered"
	OutcomeFailed    AttemptOutcome = "failed"
	OutcomeBounced   AttemptOutcome = "bounced"
)

func (o AttemptOutcome) String() string { return string(o) }

func (o AttemptOutcome) IsValid() bool {
	switch o {
	case OutcomeDelivered, OutcomeFailed, OutcomeBounced:
		return true
	}
	return false
}

// DeliveryAttempt is one immutable ledger record of a single delivery try on
// one channel. Entries are append-only; the core never mutates or removes them.
type DeliveryAttempt struct {
	ID                string
	NotificationID    string
	Channel           Channel
	AttemptNumber     int
	Outcome           AttemptOutcome
	Provider          string
	ProviderMessageID *string
	ErrorCode         *string
	ErrorMessage      *string
	DurationMillis    int64
	AttemptedAt       time.Time
	DeliveredAt       *time.Time
}
