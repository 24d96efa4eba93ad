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
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker serializes submissions that target the same doctor slot, across
// every BFF instance sharing the Redis.
type Locker interface {
	WithSlotLock(ctx context.Context, slot Slot, fn func(ctx context.Context) error) error
}

// Slot is a doctor's date and minute.
type Slot struct {
	DoctorID int64
	Date     string
	Time     string
}

func (s Slot) Key() string {
	return fmt.Sprintf("lock:slot:%d:%s:%s", s.DoctorID, s.Date, s.Time)
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker that uses a per slot Redis key
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slot Slot, fn func(ctx context.Context) error) error {
	key := slot.Key()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release even if ctx was cancelled by fn's deadline
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

type noopLocker struct{}

// NoopLocker runs fn directly. Used when no Redis is configured.
func NoopLocker() Locker { return noopLocker{} }

func (noopLocker) WithSlotLock(ctx context.Context, _ Slot, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
