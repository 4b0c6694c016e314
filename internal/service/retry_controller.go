package service

import (
	"fmt"
	"sync"

	"github.com/shiftguard/notify-engine/internal/domain"
)

const defaultMaxAttempts = 3

// RetryController tracks orchestration passes per notification and decides
// retry eligibility. Counters are process-local: a restart resets them, which
// is accepted; the ledger remains the durable record of every attempt.
type RetryController struct {
	mu          sync.Mutex
	maxAttempts int
	counts      map[string]int
	passLocks   map[string]*passLock
}

// passLock is reference-counted so the entry can be dropped once the last
// holder releases it; the table only holds locks for in-flight passes.
type passLock struct {
	mu   sync.Mutex
	refs int
}

func NewRetryController(maxAttempts int) *RetryController {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}

	return &RetryController{
		maxAttempts: maxAttempts,
		counts:      make(map[string]int),
		passLocks:   make(map[string]*passLock),
	}
}

// MaxAttempts returns the configured retry budget.
func (c *RetryController) MaxAttempts() int {
	return c.maxAttempts
}

// ShouldRetry reports whether the notification still has retry budget.
func (c *RetryController) ShouldRetry(notificationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[notificationID] < c.maxAttempts
}

// RecordAttempt increments the pass counter and returns the new attempt number.
func (c *RetryController) RecordAttempt(notificationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[notificationID]++
	return c.counts[notificationID]
}

// Forget drops the counter once a notification is delivered. Exhausted
// counters of failed notifications are kept so the budget stays spent.
func (c *RetryController) Forget(notificationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, notificationID)
}

// CheckBudget returns ErrMaxRetries when the budget is exhausted, so callers
// get a distinguishable error instead of a silent no-op retry.
func (c *RetryController) CheckBudget(notificationID string) error {
	if !c.ShouldRetry(notificationID) {
		return fmt.Errorf("%w: notification %s used all %d attempts",
			domain.ErrMaxRetries, notificationID, c.maxAttempts)
	}
	return nil
}

// LockPass serializes orchestration passes for one notification identifier so
// attempt numbering stays monotonic under concurrent retries. Passes for
// different identifiers proceed independently. The returned func releases the
// lock.
func (c *RetryController) LockPass(notificationID string) func() {
	c.mu.Lock()
	lock, ok := c.passLocks[notificationID]
	if !ok {
		lock = &passLock{}
		c.passLocks[notificationID] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		c.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.passLocks, notificationID)
		}
		c.mu.Unlock()
	}
}
