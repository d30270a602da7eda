package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// RedisStore keeps each session's history in two redis lists, one for
// messages and one for command blocks, values JSON-encoded. A non-zero TTL
// is refreshed on every append so idle sessions eventually expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, msg events.Message) error {
	return s.push(ctx, messageKey(msg.SessionID), msg)
}

func (s *RedisStore) AppendCommand(ctx context.Context, rec events.CommandBlockRecord) error {
	return s.push(ctx, commandKey(rec.SessionID), rec)
}

func (s *RedisStore) Messages(ctx context.Context, sessionID string) ([]events.Message, error) {
	rows, err := s.rows(ctx, messageKey(sessionID))
	if err != nil {
		return nil, err
	}
	out := make([]events.Message, 0, len(rows))
	for _, row := range rows {
		var msg events.Message
		if err := json.Unmarshal([]byte(row), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) Commands(ctx context.Context, sessionID string) ([]events.CommandBlockRecord, error) {
	rows, err := s.rows(ctx, commandKey(sessionID))
	if err != nil {
		return nil, err
	}
	out := make([]events.CommandBlockRecord, 0, len(rows))
	for _, row := range rows {
		var rec events.CommandBlockRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, fmt.Errorf("decode command block: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) push(ctx context.Context, key string, v any) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) rows(ctx context.Context, key string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	rows, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return rows, nil
}

func messageKey(sessionID string) string {
	return fmt.Sprintf("console:messages:%s", strings.TrimSpace(sessionID))
}

func commandKey(sessionID string) string {
	return fmt.Sprintf("console:commands:%s", strings.TrimSpace(sessionID))
}
