package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// unlockLua deletes the lock only if the caller still holds it
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua extends the TTL only if the caller still holds the lock
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker serializes route executions for one account across processes
// using SET NX with a TTL. A held lock is renewed every ttl/3 until released,
// so a route that outlives the TTL keeps the account.
type RedisLocker struct {
	rdb      *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
	unlockSc *redis.Script
	renewSc  *redis.Script
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:      rdb,
		ttl:      ttl,
		logger:   logger,
		unlockSc: redis.NewScript(unlockLua),
		renewSc:  redis.NewScript(renewLua),
	}
}

// AccountLockKey generates the lock key for an account
func AccountLockKey(account common.Address) string {
	return "lock:account:" + strings.ToLower(account.Hex())
}

// Acquire returns entities.ErrAccountBusy when another holder has the lock.
// The release function is safe to call more than once.
func (l *RedisLocker) Acquire(ctx context.Context, account common.Address) (func(), error) {
	token := uuid.New().String()
	key := AccountLockKey(account)

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrAccountBusy, account.Hex())
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		keepAlive(stop, l.ttl/3, func() (bool, error) { return l.renew(key, token) }, l.logger.With(zap.String("key", key)))
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// The caller's context may already be cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{key}, token).Err()
		})
	}, nil
}

func (l *RedisLocker) renew(key, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()

	n, err := l.renewSc.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive calls renew every interval until stop is closed. It returns early
// once renew reports the lock is no longer held. Errors are logged and
// retried on the next tick while the TTL still covers the gap.
func keepAlive(stop <-chan struct{}, interval time.Duration, renew func() (bool, error), logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := renew()
			switch {
			case err != nil:
				logger.Warn("failed to renew account lock", zap.Error(err))
			case !held:
				logger.Error("account lock expired while held")
				return
			}
		}
	}
}
