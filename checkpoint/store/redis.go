package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/izukaai/izuka/checkpoint"
	errorskg "github.com/izukaai/izuka/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements checkpoint.Store using Redis
type RedisStore struct {
	client *redis.Client
	prefix string // Key prefix for namespacing
	ttl    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for keys (0 means no expiration)
}

// NewRedisStore creates a new Redis-based checkpoint store
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "izuka:checkpoint:",
			TTL:    0,
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

func (s *RedisStore) setKey() string {
	return s.prefix + "set"
}

// Save upserts the record for its thread
func (s *RedisStore) Save(ctx context.Context, rec *checkpoint.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ThreadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}

	now := time.Now()
	stored := *rec
	stored.UpdatedAt = now
	stored.CreatedAt = now
	if prev, err := s.Load(ctx, rec.ThreadID); err == nil {
		stored.CreatedAt = prev.CreatedAt
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	key := s.key(rec.ThreadID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store checkpoint in Redis: %w", err)
	}

	// Track the key in a set for listing
	if err := s.client.SAdd(ctx, s.setKey(), key).Err(); err != nil {
		return fmt.Errorf("failed to add checkpoint key to set: %w", err)
	}

	return nil
}

// Load returns the record for the thread
func (s *RedisStore) Load(ctx context.Context, threadID string) (*checkpoint.Record, error) {
	data, err := s.client.Get(ctx, s.key(threadID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var rec checkpoint.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &rec, nil
}

// Delete removes the thread's record
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	key := s.key(threadID)
	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
	}

	if err := s.client.SRem(ctx, s.setKey(), key).Err(); err != nil {
		return fmt.Errorf("failed to remove checkpoint key from set: %w", err)
	}
	return nil
}

// List returns all records, most recently updated first
func (s *RedisStore) List(ctx context.Context) ([]*checkpoint.Record, error) {
	keys, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint keys: %w", err)
	}

	records := make([]*checkpoint.Record, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				// Key expired, remove from set
				s.client.SRem(ctx, s.setKey(), key)
				continue
			}
			return nil, fmt.Errorf("failed to get checkpoint: %w", err)
		}

		var rec checkpoint.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// Exists reports whether a record is stored for the thread
func (s *RedisStore) Exists(ctx context.Context, threadID string) (bool, error) {
	if strings.TrimSpace(threadID) == "" {
		return false, nil
	}
	count, err := s.client.Exists(ctx, s.key(threadID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	return count > 0, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
