package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shiftguard/notify-engine/internal/domain"
	"go.uber.org/zap"
)

func TestTopic(t *testing.T) {
	t.Parallel()

	if got := Topic("guard-1"); got != "notifications:guard-1" {
		t.Fatalf("Topic() = %q, want notifications:guard-1", got)
	}
}

func TestPayloadFromDomain(t *testing.T) {
	t.Parallel()

	readAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := domain.Notification{
		ID:          "n1",
		RecipientID: "guard-1",
		Type:        domain.TypeShiftAssigned,
		Priority:    domain.PriorityHigh,
		Category:    domain.CategorySchedule,
		Title:       "New shift",
		Message:     "Night shift assigned.",
		Status:      domain.StatusDelivered,
		Channels:    []domain.Channel{domain.ChannelInApp},
		IsRead:      true,
		ReadAt:      &readAt,
	}

	payload := PayloadFromDomain(n)
	if payload.ID != "n1" || payload.RecipientID != "guard-1" {
		t.Fatalf("payload identity = %s/%s", payload.ID, payload.RecipientID)
	}
	if payload.Status != domain.StatusDelivered || !payload.IsRead {
		t.Fatalf("payload state = %+v", payload)
	}
	if payload.ReadAt == nil || !payload.ReadAt.Equal(readAt) {
		t.Fatalf("payload read at = %v, want %v", payload.ReadAt, readAt)
	}
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	broker, err := NewRedisBroker(rdb, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisBroker() error = %v", err)
	}

	received := make(chan Envelope, 1)
	unsubscribe, err := broker.Subscribe(context.Background(), "guard-1", func(envelope Envelope) {
		received <- envelope
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	n := domain.Notification{
		ID:          "n1",
		RecipientID: "guard-1",
		Type:        domain.TypeShiftAssigned,
		Priority:    domain.PriorityNormal,
		Category:    domain.CategorySchedule,
		Title:       "New shift",
		Message:     "body",
		Status:      domain.StatusDelivered,
		Channels:    []domain.Channel{domain.ChannelInApp},
	}
	if err := broker.Publish(context.Background(), EventUpdated, n); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case envelope := <-received:
		if envelope.Event != EventUpdated {
			t.Fatalf("event = %s, want updated", envelope.Event)
		}
		if envelope.Notification.ID != "n1" {
			t.Fatalf("notification id = %s, want n1", envelope.Notification.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the published envelope")
	}
}

func TestRedisBrokerSubscribeIsolatedPerRecipient(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	broker, err := NewRedisBroker(rdb, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisBroker() error = %v", err)
	}

	received := make(chan Envelope, 1)
	unsubscribe, err := broker.Subscribe(context.Background(), "guard-1", func(envelope Envelope) {
		received <- envelope
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsubscribe()

	other := domain.Notification{ID: "n2", RecipientID: "guard-2"}
	if err := broker.Publish(context.Background(), EventCreated, other); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case envelope := <-received:
		t.Fatalf("guard-1 subscriber received guard-2 traffic: %+v", envelope)
	case <-time.After(200 * time.Millisecond):
	}
}
