package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/alhumaw/MISP-tools-fork/internal/logger"
)

// RedisStore keeps the watermark under a single Redis key. The monotonic
// check runs under an in-process mutex; the sync engine is the only writer.
type RedisStore struct {
	client *redis.Client
	key    string
	mu     sync.Mutex
	log    logger.Logger
}

func NewRedisStore(client *redis.Client, key string, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, log: log}
}

func (s *RedisStore) Read(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *RedisStore) read(ctx context.Context) (int64, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint key %s: %w", s.key, err)
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		s.log.WarnwCtx(ctx, "Malformed checkpoint value, treating as first run",
			"key", s.key,
			"value", value,
		)
		return 0, nil
	}

	return ts, nil
}

func (s *RedisStore) Advance(ctx context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx)
	if err != nil {
		return err
	}
	if ts <= current {
		return nil
	}

	if err := s.client.Set(ctx, s.key, strconv.FormatInt(ts, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to write checkpoint key %s: %w", s.key, err)
	}

	s.log.DebugwCtx(ctx, "Checkpoint advanced",
		"from", current,
		"to", ts,
	)
	return nil
}
