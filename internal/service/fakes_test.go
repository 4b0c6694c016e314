package service

import (
	"context"
	"sync"
	"time"

	"github.com/shiftguard/notify-engine/internal/channel"
	"github.com/shiftguard/notify-engine/internal/domain"
	"github.com/shiftguard/notify-engine/internal/fanout"
	"github.com/shiftguard/notify-engine/internal/repository"
)

type fakeNotificationRepo struct {
	createFn        func(ctx context.Context, n *domain.Notification) error
	getByIDFn       func(ctx context.Context, id string) (*domain.Notification, error)
	listFn          func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	updateStatusFn  func(ctx context.Context, id string, status domain.Status) error
	markReadFn      func(ctx context.Context, id string, now time.Time) (*domain.Notification, error)
	markAllReadFn   func(ctx context.Context, recipientID string, now time.Time) (int64, error)
	acknowledgeFn   func(ctx context.Context, id string, now time.Time) (*domain.Notification, error)
	selectPendingFn func(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error)
	statsFn         func(ctx context.Context, recipientID string) (*domain.RecipientStats, error)
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, n)
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listFn == nil {
		return nil, 0, nil
	}
	return f.listFn(ctx, params)
}

func (f *fakeNotificationRepo) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	if f.updateStatusFn == nil {
		return nil
	}
	return f.updateStatusFn(ctx, id, status)
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id string, now time.Time) (*domain.Notification, error) {
	if f.markReadFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.markReadFn(ctx, id, now)
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	if f.markAllReadFn == nil {
		return 0, nil
	}
	return f.markAllReadFn(ctx, recipientID, now)
}

func (f *fakeNotificationRepo) Acknowledge(ctx context.Context, id string, now time.Time) (*domain.Notification, error) {
	if f.acknowledgeFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.acknowledgeFn(ctx, id, now)
}

func (f *fakeNotificationRepo) SelectPending(ctx context.Context, limit int, now time.Time) ([]domain.Notification, error) {
	if f.selectPendingFn == nil {
		return nil, nil
	}
	return f.selectPendingFn(ctx, limit, now)
}

func (f *fakeNotificationRepo) Stats(ctx context.Context, recipientID string) (*domain.RecipientStats, error) {
	if f.statsFn == nil {
		return &domain.RecipientStats{}, nil
	}
	return f.statsFn(ctx, recipientID)
}

// memoryLedger is a thread-safe in-memory AttemptRepository that keeps real
// attempt numbering, so orchestration tests exercise the same bookkeeping as
// the database-backed implementation.
type memoryLedger struct {
	mu      sync.Mutex
	entries []domain.DeliveryAttempt
}

func (l *memoryLedger) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *a)
	return nil
}

func (l *memoryLedger) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.DeliveryAttempt
	for _, e := range l.entries {
		if e.NotificationID == notificationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memoryLedger) MaxAttemptNumber(ctx context.Context, notificationID string, ch domain.Channel) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	max := 0
	for _, e := range l.entries {
		if e.NotificationID == notificationID && e.Channel == ch && e.AttemptNumber > max {
			max = e.AttemptNumber
		}
	}
	return max, nil
}

func (l *memoryLedger) ListBetween(ctx context.Context, from, to time.Time) ([]domain.DeliveryAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.DeliveryAttempt
	for _, e := range l.entries {
		if !e.AttemptedAt.Before(from) && !e.AttemptedAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memoryLedger) byChannel(notificationID string, ch domain.Channel) []domain.DeliveryAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.DeliveryAttempt
	for _, e := range l.entries {
		if e.NotificationID == notificationID && e.Channel == ch {
			out = append(out, e)
		}
	}
	return out
}

type fakeAttemptRepo struct {
	createFn              func(ctx context.Context, a *domain.DeliveryAttempt) error
	getByNotificationIDFn func(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error)
	maxAttemptNumberFn    func(ctx context.Context, notificationID string, ch domain.Channel) (int, error)
	listBetweenFn         func(ctx context.Context, from, to time.Time) ([]domain.DeliveryAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, a)
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	if f.getByNotificationIDFn == nil {
		return nil, nil
	}
	return f.getByNotificationIDFn(ctx, notificationID)
}

func (f *fakeAttemptRepo) MaxAttemptNumber(ctx context.Context, notificationID string, ch domain.Channel) (int, error) {
	if f.maxAttemptNumberFn == nil {
		return 0, nil
	}
	return f.maxAttemptNumberFn(ctx, notificationID, ch)
}

func (f *fakeAttemptRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.DeliveryAttempt, error) {
	if f.listBetweenFn == nil {
		return nil, nil
	}
	return f.listBetweenFn(ctx, from, to)
}

type fakePreferenceRepo struct {
	getFn func(ctx context.Context, recipientID string) (*domain.DeliveryPreferences, error)
}

func (f *fakePreferenceRepo) Get(ctx context.Context, recipientID string) (*domain.DeliveryPreferences, error) {
	if f.getFn == nil {
		return nil, nil
	}
	return f.getFn(ctx, recipientID)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event fanout.Event, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []fanout.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fanout.Event(nil), f.events...)
}

type fakeSubscriber struct {
	subscribeFn func(ctx context.Context, recipientID string, fn fanout.Handler) (func(), error)
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, recipientID string, fn fanout.Handler) (func(), error) {
	if f.subscribeFn == nil {
		return func() {}, nil
	}
	return f.subscribeFn(ctx, recipientID, fn)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn == nil {
		return true, nil
	}
	return f.allowFn(ctx, channel)
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, channel)
}

type fakeAdapter struct {
	name      domain.Channel
	provider  string
	deliverFn func(ctx context.Context, n domain.Notification) (*channel.Receipt, error)
}

func (a *fakeAdapter) Name() domain.Channel { return a.name }
func (a *fakeAdapter) Provider() string     { return a.provider }
func (a *fakeAdapter) Deliver(ctx context.Context, n domain.Notification) (*channel.Receipt, error) {
	if a.deliverFn == nil {
		return &channel.Receipt{MessageID: n.ID}, nil
	}
	return a.deliverFn(ctx, n)
}
