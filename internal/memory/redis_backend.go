package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend persists the long-term store in Redis so multiple compass
// instances can share one pool of high-agreement answers.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection settings for the long-term store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix defaults to "compass:longterm:".
	Prefix string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackendFromClient(client, cfg.Prefix), nil
}

// NewRedisBackendFromClient wraps an existing client. Useful for testing
// with miniredis.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "compass:longterm:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) entriesKey() string   { return b.prefix + "entries" }
func (b *RedisBackend) questionsKey() string { return b.prefix + "questions" }

func (b *RedisBackend) Push(ctx context.Context, entry MemoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := b.client.RPush(ctx, b.entriesKey(), data).Err(); err != nil {
		return fmt.Errorf("push entry: %w", err)
	}
	return nil
}

func (b *RedisBackend) PopOldest(ctx context.Context) (MemoryEntry, error) {
	data, err := b.client.LPop(ctx, b.entriesKey()).Bytes()
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("pop oldest: %w", err)
	}
	var entry MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return MemoryEntry{}, fmt.Errorf("unmarshal entry: %w", err)
	}
	return entry, nil
}

func (b *RedisBackend) Entries(ctx context.Context) ([]MemoryEntry, error) {
	data, err := b.client.LRange(ctx, b.entriesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	entries := make([]MemoryEntry, 0, len(data))
	for _, d := range data {
		var entry MemoryEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *RedisBackend) Len(ctx context.Context) (int, error) {
	n, err := b.client.LLen(ctx, b.entriesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return int(n), nil
}

func (b *RedisBackend) AddQuestion(ctx context.Context, normalized string) error {
	return b.client.SAdd(ctx, b.questionsKey(), normalized).Err()
}

func (b *RedisBackend) RemoveQuestion(ctx context.Context, normalized string) error {
	return b.client.SRem(ctx, b.questionsKey(), normalized).Err()
}

func (b *RedisBackend) HasQuestion(ctx context.Context, normalized string) (bool, error) {
	return b.client.SIsMember(ctx, b.questionsKey(), normalized).Result()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
