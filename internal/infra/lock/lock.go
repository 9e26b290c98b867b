package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// 取れなかった（他で処理中）
var ErrNotObtained = errors.New("lock not obtained")

type Releaser interface {
	Release(ctx context.Context) error
}

// 同じ注文の二重送信をまとめるためのロック
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error)
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// 待たずに1回だけ試す
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return redisReleaser{lk}, nil
}

type redisReleaser struct {
	lock *redislock.Lock
}

func (r redisReleaser) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	// TTL切れは問題にしない
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// REDIS_ADDRESS未設定のとき（DBの一意制約とTxだけで守る）
type NoopLocker struct{}

func (NoopLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	return noopReleaser{}, nil
}

type noopReleaser struct{}

func (noopReleaser) Release(ctx context.Context) error { return nil }

// 接続確認してから返す
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
