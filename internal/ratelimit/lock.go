package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var errLocksNotConfigured = errors.New("message locks not configured")

// inFlightLocks marks a message id as being ingested. Locks are never
// refreshed: the TTL bounds how long a crashed request can block retries
// of its message.
type inFlightLocks struct {
	client *redislock.Client
	ttl    time.Duration
}

func newInFlightLocks(client redis.UniversalClient, ttl time.Duration) *inFlightLocks {
	if client == nil {
		return nil
	}
	return &inFlightLocks{client: redislock.New(client), ttl: ttl}
}

// acquire returns a nil lock and no error when another request holds key.
func (l *inFlightLocks) acquire(ctx context.Context, key string) (*redislock.Lock, error) {
	if l == nil || l.client == nil {
		return nil, errLocksNotConfigured
	}
	if key == "" || l.ttl <= 0 {
		return nil, errors.New("message lock needs a key and a positive ttl")
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, nil
	}
	return lock, err
}

// release drops lock. A lock that already expired is not an error.
func (l *inFlightLocks) release(ctx context.Context, lock *redislock.Lock) error {
	if lock == nil {
		return nil
	}
	err := lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
