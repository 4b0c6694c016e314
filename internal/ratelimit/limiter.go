package ratelimit

import "context"

// RateLimiter throttles outbound sends per delivery channel so a drain pass
// cannot overwhelm a downstream provider.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}
