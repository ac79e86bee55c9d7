package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ema-voice:conversation:"

// RedisStore keeps each session as a redis list of JSON records, oldest
// first.
type RedisStore struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedis(client), nil
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisStore) Latest(ctx context.Context, sessionID string) (Record, error) {
	ctx, span := tracer.Start(ctx, "redis latest")
	defer span.End()

	key := redisKey(sessionID)
	var (
		last   *redis.StringCmd
		length *redis.IntCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		last = pipe.LIndex(ctx, key, -1)
		length = pipe.LLen(ctx, key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read latest record: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(last.Val()), &record); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	record.ID = length.Val()
	return record, nil
}

// Append pushes the record onto the session list. A record's id is its
// one-based position in the list, so ids and list order always agree.
func (s *RedisStore) Append(ctx context.Context, record Record) error {
	ctx, span := tracer.Start(ctx, "redis append")
	defer span.End()

	record.ID = 0
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := s.client.RPush(ctx, redisKey(record.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
