package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/student-booking-engine/internal/config"
	"github.com/smarttransit/student-booking-engine/internal/models"
)

const statusKeyPrefix = "booking-status:"

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// StatusCacheStore keeps each student's optimistic booking-status cache in a
// Redis hash keyed by date. The store is a convenience copy of the client-side
// cache and is never treated as authoritative.
type StatusCacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCacheStore creates a new StatusCacheStore
func NewStatusCacheStore(client *redis.Client, ttl time.Duration) *StatusCacheStore {
	return &StatusCacheStore{client: client, ttl: ttl}
}

func statusKey(studentID string) string {
	return statusKeyPrefix + studentID
}

// Get returns the student's stored cache; an unknown student yields an empty cache
func (s *StatusCacheStore) Get(ctx context.Context, studentID string) (models.StatusCache, error) {
	fields, err := s.client.HGetAll(ctx, statusKey(studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status cache: %w", err)
	}

	cache := make(models.StatusCache, len(fields))
	for date, value := range fields {
		cache[date] = value == "1"
	}
	return cache, nil
}

// Set records one date and refreshes the key's TTL
func (s *StatusCacheStore) Set(ctx context.Context, studentID, date string, booked bool) error {
	return s.Merge(ctx, studentID, models.StatusCache{date: booked})
}

// Merge writes every entry of cache over the stored values and refreshes the TTL.
// Dates not present in cache are kept.
func (s *StatusCacheStore) Merge(ctx context.Context, studentID string, cache models.StatusCache) error {
	if len(cache) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(cache))
	for date, booked := range cache {
		values[date] = encode(booked)
	}

	key := statusKey(studentID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write status cache: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *StatusCacheStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func encode(booked bool) string {
	if booked {
		return "1"
	}
	return "0"
}
