package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotLockHolder is returned when a caller tries to release a lock
	// it does not hold. Non-fatal: the caller either never held it or the
	// lock already expired.
	ErrNotLockHolder = errors.New("caller does not hold the slot lock")

	// ErrLockStoreUnavailable marks infrastructure failures on the lock
	// store. Callers surface these as retryable; a lock is never granted
	// on failure.
	ErrLockStoreUnavailable = errors.New("lock store unavailable")
)

// SlotLocker guards a slot while a patient walks through the booking flow.
// Unlike a critical-section mutex the lock is held across requests: acquired
// on slot selection, checked again at submit, and released on booking or
// abandonment. Redis TTL handles abandoned holds.
type SlotLocker interface {
	// Acquire attempts to take the slot lock for holder. A contended lock
	// yields (false, nil); that is an expected outcome, not an error.
	Acquire(ctx context.Context, slotID uuid.UUID, holder string) (bool, error)

	// Release deletes the lock if holder owns it, ErrNotLockHolder otherwise.
	Release(ctx context.Context, slotID uuid.UUID, holder string) error

	// HeldBy reports whether holder currently owns the slot lock.
	HeldBy(ctx context.Context, slotID uuid.UUID, holder string) (bool, error)

	// IsLocked reports whether any live lock exists for the slot. Used to
	// reconcile the advisory `locked` slot status against lock existence.
	IsLocked(ctx context.Context, slotID uuid.UUID) (bool, error)

	// TTL is the configured lock lifetime.
	TTL() time.Duration
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSlotLocker creates a locker backed by a per slot Redis key whose value
// is the holder reference.
func NewSlotLocker(client *redis.Client, ttl time.Duration) SlotLocker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(slotID uuid.UUID) string {
	return fmt.Sprintf("lock:slot:%s", slotID.String())
}

func (l *redisSlotLocker) Acquire(ctx context.Context, slotID uuid.UUID, holder string) (bool, error) {
	// SET NX EX is the single atomic check-and-set; two concurrent
	// acquires for the same slot resolve to exactly one success.
	ok, err := l.client.SetNX(ctx, lockKey(slotID), holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: acquire slot lock: %v", ErrLockStoreUnavailable, err)
	}
	return ok, nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) Release(ctx context.Context, slotID uuid.UUID, holder string) error {
	deleted, err := unlockScript.Run(ctx, l.client, []string{lockKey(slotID)}, holder).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: release slot lock: %v", ErrLockStoreUnavailable, err)
	}
	if deleted == 0 {
		return ErrNotLockHolder
	}
	return nil
}

func (l *redisSlotLocker) HeldBy(ctx context.Context, slotID uuid.UUID, holder string) (bool, error) {
	val, err := l.client.Get(ctx, lockKey(slotID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check slot lock: %v", ErrLockStoreUnavailable, err)
	}
	return val == holder, nil
}

func (l *redisSlotLocker) IsLocked(ctx context.Context, slotID uuid.UUID) (bool, error) {
	n, err := l.client.Exists(ctx, lockKey(slotID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check slot lock: %v", ErrLockStoreUnavailable, err)
	}
	return n > 0, nil
}

func (l *redisSlotLocker) TTL() time.Duration {
	return l.ttl
}
