package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shiftguard/notify-engine/internal/channel"
	"github.com/shiftguard/notify-engine/internal/domain"
	"go.uber.org/zap"
)

func newDrainerForTest(t *testing.T, repo *fakeNotificationRepo, adapters ...channel.Adapter) (*QueueDrainer, *memoryLedger) {
	t.Helper()

	ledger := &memoryLedger{}
	orchestrator := newTestOrchestrator(t, orchestratorDeps{repo: repo, ledger: ledger}, adapters...)

	drainer, err := NewQueueDrainer(repo, orchestrator, 100, 4, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueDrainer() error = %v", err)
	}
	return drainer, ledger
}

func TestProcessQueueDeliversBatch(t *testing.T) {
	t.Parallel()

	pending := []domain.Notification{
		*testNotification("n1", domain.ChannelInApp),
		*testNotification("n2", domain.ChannelInApp),
		*testNotification("n3", domain.ChannelInApp),
	}

	var requestedLimit int
	repo := &fakeNotificationRepo{
		selectPendingFn: func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
			requestedLimit = limit
			return pending, nil
		},
	}

	drainer, ledger := newDrainerForTest(t, repo, &fakeAdapter{name: domain.ChannelInApp, provider: "inapp"})

	delivered, err := drainer.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3", delivered)
	}
	if requestedLimit != 100 {
		t.Fatalf("batch limit = %d, want 100", requestedLimit)
	}

	for _, n := range pending {
		entries, _ := ledger.GetByNotificationID(context.Background(), n.ID)
		if len(entries) != 1 {
			t.Fatalf("ledger entries for %s = %d, want 1", n.ID, len(entries))
		}
	}
}

func TestProcessQueueEmptyBatch(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		selectPendingFn: func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
			return nil, nil
		},
	}

	drainer, _ := newDrainerForTest(t, repo, &fakeAdapter{name: domain.ChannelInApp, provider: "inapp"})

	delivered, err := drainer.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}

func TestProcessQueueSelectFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		selectPendingFn: func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	drainer, _ := newDrainerForTest(t, repo, &fakeAdapter{name: domain.ChannelInApp, provider: "inapp"})

	if _, err := drainer.ProcessQueue(context.Background()); err == nil {
		t.Fatal("ProcessQueue() should surface selection failures")
	}
}

func TestProcessQueueOneFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	pending := []domain.Notification{
		*testNotification("bad", domain.ChannelEmail),
		*testNotification("good", domain.ChannelInApp),
	}

	repo := &fakeNotificationRepo{
		selectPendingFn: func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
			return pending, nil
		},
	}

	drainer, ledger := newDrainerForTest(t, repo,
		&fakeAdapter{name: domain.ChannelInApp, provider: "inapp"},
		&fakeAdapter{
			name:     domain.ChannelEmail,
			provider: "email-relay",
			deliverFn: func(ctx context.Context, n domain.Notification) (*channel.Receipt, error) {
				return nil, &channel.Error{Code: channel.CodeTransportError, Message: "relay down"}
			},
		},
	)

	delivered, err := drainer.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	badEntries := ledger.byChannel("bad", domain.ChannelEmail)
	if len(badEntries) != 1 || badEntries[0].Outcome != domain.OutcomeFailed {
		t.Fatalf("failed notification should still be in the ledger, got %+v", badEntries)
	}
}

func TestProcessQueueRespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	pending := make([]domain.Notification, 12)
	for i := range pending {
		pending[i] = *testNotification(fmt.Sprintf("n%d", i), domain.ChannelInApp)
	}

	repo := &fakeNotificationRepo{
		selectPendingFn: func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
			return pending, nil
		},
	}

	var mu sync.Mutex
	active := 0
	maxActive := 0

	ledger := &memoryLedger{}
	orchestrator := newTestOrchestrator(t,
		orchestratorDeps{repo: repo, ledger: ledger, retries: NewRetryController(100)},
		&fakeAdapter{
			name:     domain.ChannelInApp,
			provider: "inapp",
			deliverFn: func(ctx context.Context, n domain.Notification) (*channel.Receipt, error) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return &channel.Receipt{MessageID: n.ID}, nil
			},
		},
	)

	drainer, err := NewQueueDrainer(repo, orchestrator, 100, 3, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueDrainer() error = %v", err)
	}

	delivered, err := drainer.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}
	if delivered != len(pending) {
		t.Fatalf("delivered = %d, want %d", delivered, len(pending))
	}
	if maxActive > 3 {
		t.Fatalf("max concurrent deliveries = %d, want <= 3", maxActive)
	}
}

func TestDrainerStartRunsInitialPassAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	selections := 0

	repo := &fakeNotificationRepo{
		selectPendingFn: func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
			mu.Lock()
			selections++
			mu.Unlock()
			return nil, nil
		},
	}

	ledger := &memoryLedger{}
	orchestrator := newTestOrchestrator(t, orchestratorDeps{repo: repo, ledger: ledger},
		&fakeAdapter{name: domain.ChannelInApp, provider: "inapp"})

	drainer, err := NewQueueDrainer(repo, orchestrator, 100, 4, 5*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueueDrainer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- drainer.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not stop after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if selections < 2 {
		t.Fatalf("selections = %d, want at least the initial pass plus one tick", selections)
	}
}
