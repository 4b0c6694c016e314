package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shiftguard/notify-engine/internal/domain"
	"github.com/shiftguard/notify-engine/internal/repository"
)

// ChannelBreakdown summarizes ledger entries for one channel.
type ChannelBreakdown struct {
	Attempts  int64
	Delivered int64
	Failed    int64
}

// DeliveryAnalytics aggregates the attempt ledger over a time window.
type DeliveryAnalytics struct {
	From              time.Time
	To                time.Time
	TotalAttempts     int64
	DeliveredCount    int64
	FailedCount       int64
	AverageDurationMs float64
	ByChannel         map[domain.Channel]ChannelBreakdown
	ByStatus          map[domain.AttemptOutcome]int64
}

// AnalyticsAggregator computes read-side delivery analytics from the ledger.
type AnalyticsAggregator struct {
	attempts repository.AttemptRepository
}

func NewAnalyticsAggregator(attempts repository.AttemptRepository) (*AnalyticsAggregator, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	return &AnalyticsAggregator{attempts: attempts}, nil
}

// Compute reduces ledger entries inside the inclusive [from, to] range. An
// empty range yields zero-filled aggregates, not an error.
func (a *AnalyticsAggregator) Compute(ctx context.Context, from, to time.Time) (*DeliveryAnalytics, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: time range end precedes start", domain.ErrValidation)
	}

	entries, err := a.attempts.ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read attempt ledger: %v", domain.ErrStore, err)
	}

	analytics := &DeliveryAnalytics{
		From:      from,
		To:        to,
		ByChannel: make(map[domain.Channel]ChannelBreakdown),
		ByStatus:  make(map[domain.AttemptOutcome]int64),
	}

	var durationSum int64
	var durationCount int64

	for i := range entries {
		entry := &entries[i]
		analytics.TotalAttempts++
		analytics.ByStatus[entry.Outcome]++

		breakdown := analytics.ByChannel[entry.Channel]
		breakdown.Attempts++

		switch entry.Outcome {
		case domain.OutcomeDelivered:
			analytics.DeliveredCount++
			breakdown.Delivered++
		default:
			analytics.FailedCount++
			breakdown.Failed++
		}
		analytics.ByChannel[entry.Channel] = breakdown

		if entry.DurationMillis >= 0 {
			durationSum += entry.DurationMillis
			durationCount++
		}
	}

	if durationCount > 0 {
		analytics.AverageDurationMs = float64(durationSum) / float64(durationCount)
	}

	return analytics, nil
}
