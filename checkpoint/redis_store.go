package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore Redis 检查点存储
// 检查点本体按 key 存储，线程内的顺序由有序集合索引维护（score 为创建时间）
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 检查点存储
// ttl 为 0 时检查点不过期
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "taskflow"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.checkpointKey(cp.ThreadID, cp.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	// 线程索引：按创建时间排序
	err = s.client.ZAdd(ctx, s.threadKey(cp.ThreadID), redis.Z{
		Score:  float64(cp.CreatedAt.UnixNano()),
		Member: cp.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("index checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved to redis",
		zap.String("checkpoint_id", cp.ID),
		zap.String("thread_id", cp.ThreadID),
	)
	return nil
}

func (s *RedisStore) Load(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointKey(threadID, checkpointID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, s.threadKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("query thread index: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(ctx, threadID, ids[0])
}

func (s *RedisStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.threadKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("query thread index: %w", err)
	}

	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Load(ctx, threadID, id)
		if err != nil {
			// 索引里残留了已过期的 key，清掉继续
			s.logger.Warn("dropping dangling checkpoint index entry",
				zap.String("checkpoint_id", id),
				zap.Error(err),
			)
			s.client.ZRem(ctx, s.threadKey(threadID), id)
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID, checkpointID string) error {
	n, err := s.client.Del(ctx, s.checkpointKey(threadID, checkpointID)).Result()
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if err := s.client.ZRem(ctx, s.threadKey(threadID), checkpointID).Err(); err != nil {
		return fmt.Errorf("unindex checkpoint: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	var cursor uint64
	pattern := fmt.Sprintf("%s:thread:*", s.prefix)
	max := fmt.Sprintf("(%d", cutoff.UnixNano())

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan thread indexes: %w", err)
		}
		for _, threadKey := range keys {
			threadID := threadKey[len(s.prefix)+len(":thread:"):]
			ids, err := s.client.ZRangeByScore(ctx, threadKey, &redis.ZRangeBy{
				Min: "-inf",
				Max: max,
			}).Result()
			if err != nil {
				return deleted, fmt.Errorf("query old checkpoints: %w", err)
			}
			for _, id := range ids {
				if err := s.Delete(ctx, threadID, id); err != nil && !errors.Is(err, ErrNotFound) {
					return deleted, err
				}
				deleted++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func (s *RedisStore) checkpointKey(threadID, id string) string {
	return fmt.Sprintf("%s:checkpoint:%s:%s", s.prefix, threadID, id)
}

func (s *RedisStore) threadKey(threadID string) string {
	return fmt.Sprintf("%s:thread:%s", s.prefix, threadID)
}
