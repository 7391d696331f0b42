package ratelimit

import "context"

// RateLimiter controls throughput per key. The send path keys on the
// notification type; the callback dispatcher keys on the destination host so
// one slow subscriber cannot starve the others.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
