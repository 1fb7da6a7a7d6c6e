package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the alternate, network-shared Event log backend, adapted
// from the teacher's store.RedisStore[T]: a prefix-scoped key per event
// plus a set key indexing every key under that prefix for List/Count.
type RedisStore struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
	ttl    time.Duration
	prefix string
	index  string
}

// RedisStoreConfig configures the Redis-backed event log.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Options  *redis.Options
}

// NewRedisStore connects to Redis and verifies reachability with a Ping.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	var client *redis.Client
	if config.Options != nil {
		client = redis.NewClient(config.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "telemetry:"
	}

	return &RedisStore{
		client: client,
		ttl:    config.TTL,
		prefix: prefix,
		index:  prefix + "index",
	}, nil
}

func (r *RedisStore) makeKey(key string) string { return r.prefix + key }

func (r *RedisStore) Save(ctx context.Context, key string, event Event) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("telemetry: marshal event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.makeKey(key), data, r.ttl)
	pipe.SAdd(ctx, r.index, key)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Load(ctx context.Context, key string) (Event, error) {
	var zero Event
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return zero, ErrStoreClosed
	}

	data, err := r.client.Get(ctx, r.makeKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return zero, ErrNotFound
		}
		return zero, err
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return zero, err
	}
	return ev, nil
}

func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	return r.client.SMembers(ctx, r.index).Result()
}

func (r *RedisStore) Count(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return 0, ErrStoreClosed
	}
	return r.client.SCard(ctx, r.index).Result()
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStoreClosed
	}
	r.closed = true
	return r.client.Close()
}
