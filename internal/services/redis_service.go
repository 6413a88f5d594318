package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards jobs that must run on one instance at a time
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// RedisService provides the Redis connection used for distributed job locks
type RedisService struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisService connects to Redis and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	return newRedisService(redis.NewClient(opts))
}

func newRedisService(client *redis.Client) (*RedisService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// Client returns the underlying Redis client
func (r *RedisService) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	return r.Client().Ping(ctx).Err()
}

// AcquireLock attempts to acquire a distributed lock
// Returns true if lock was acquired, false otherwise
func (r *RedisService) AcquireLock(ctx context.Context, lockKey string, lockValue string, expiration time.Duration) (bool, error) {
	return r.Client().SetNX(ctx, lockKey, lockValue, expiration).Result()
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// ReleaseLock releases a distributed lock if it's still held by the given value
func (r *RedisService) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	result, err := releaseScript.Run(ctx, r.Client(), []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// LocalLocker is the single-instance Locker used when Redis is not
// configured. It still prevents overlapping runs inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	nowFn func() time.Time
}

type localLock struct {
	value   string
	expires time.Time
}

// NewLocalLocker creates an in-process Locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), nowFn: time.Now}
}

// AcquireLock implements Locker
func (l *LocalLocker) AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if cur, ok := l.held[lockKey]; ok && now.Before(cur.expires) {
		return false, nil
	}
	l.held[lockKey] = localLock{value: lockValue, expires: now.Add(expiration)}
	return true, nil
}

// ReleaseLock implements Locker
func (l *LocalLocker) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.held[lockKey]
	if !ok || cur.value != lockValue {
		return false, nil
	}
	delete(l.held, lockKey)
	return true, nil
}
