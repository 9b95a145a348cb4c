// Package lock provides a Redis-backed distributed lock
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrLockFailed is returned when the lock could not be acquired within the
// configured retries
var ErrLockFailed = errors.New("failed to acquire distributed lock")

// DistributedLock serializes critical sections across processes using
// SET NX with a TTL. The value identifies the holder so that an expired
// holder cannot release a lock someone else now owns.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

// New creates a distributed lock
func New(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts to acquire the lock without blocking
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock acquires the lock, retrying up to maxRetries times
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock. The check-and-delete runs as a Lua script so the
// holder comparison and the delete are atomic.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewSettlementLock creates the per-booking lock used by the reconciliation
// orchestrator. Locking per booking lets unrelated bookings settle
// concurrently while duplicate submissions for one booking serialize.
func NewSettlementLock(client *redis.Client, bookingID, requestID string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("settle:lock:booking:%s", bookingID)
	return New(client, key, requestID, ttl)
}
