package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// RecordStore keeps execution records so an ambiguous submission can be
// reconciled later by id. Get returns (nil, nil) on a miss.
type RecordStore interface {
	SaveRecord(ctx context.Context, record *entities.ExecutionRecord) error
	GetRecord(ctx context.Context, id string) (*entities.ExecutionRecord, error)
}

// RedisCache implements RecordStore using Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client exposes the connection so a lock can share it
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) SaveRecord(ctx context.Context, record *entities.ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, RecordCacheKey(record.ID), data, c.ttl).Err()
}

func (c *RedisCache) GetRecord(ctx context.Context, id string) (*entities.ExecutionRecord, error) {
	data, err := c.client.Get(ctx, RecordCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var record entities.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// RecordCacheKey generates a cache key for an execution record
func RecordCacheKey(id string) string {
	return fmt.Sprintf("execution:%s", id)
}

// InMemoryCache implements RecordStore in process memory (for testing/development)
type InMemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*cachedRecord
	now     func() time.Time
}

type cachedRecord struct {
	data      []byte
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		ttl:     ttl,
		records: make(map[string]*cachedRecord),
		now:     time.Now,
	}
}

// SaveRecord stores a serialized copy so later mutation of record is not visible
func (c *InMemoryCache) SaveRecord(ctx context.Context, record *entities.ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[RecordCacheKey(record.ID)] = &cachedRecord{
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *InMemoryCache) GetRecord(ctx context.Context, id string) (*entities.ExecutionRecord, error) {
	key := RecordCacheKey(id)

	c.mu.Lock()
	cached, ok := c.records[key]
	if ok && !c.now().Before(cached.expiresAt) {
		delete(c.records, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, nil
	}
	var record entities.ExecutionRecord
	if err := json.Unmarshal(cached.data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
