package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/ledgerly/practice-engine/config"
	"github.com/ledgerly/practice-engine/engine"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "practice:"

// Redis locks generation runs across processes. Locks expire after ttl so a
// crashed server cannot block a period forever.
type Redis struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

var _ engine.Locker = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Redis{
		rdb:    rdb,
		locker: redislock.New(rdb),
		ttl:    ttl,
		logger: logger.WithField("module", "lock"),
	}
}

// Connect dials Redis from the redis config section and verifies the
// connection with a PING.
func Connect(ctx context.Context, cfg config.RedisConfig, logger logrus.FieldLogger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}
	return NewRedis(rdb, cfg.LockTTL, logger), nil
}

// Lock obtains key without retrying.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	l, err := r.locker.Obtain(ctx, keyPrefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, engine.ErrGenerationInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		// Release with a fresh context; the run's context may be cancelled.
		if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(r.logger, "lock", "release", key, err)
		}
	}, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
