package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic transaction retries under contention
const maxUpdateRetries = 10

// RedisStore keeps tasks as JSON under task:<id> with a per-owner sorted set
// index scored by creation time.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a store whose records expire ttl after their last
// write. ttl <= 0 keeps records forever.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: redisClient, ttl: ttl}
}

func taskKey(id string) string {
	return fmt.Sprintf("task:%s", id)
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("tasks:owner:%s", ownerID)
}

func (s *RedisStore) Create(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, taskKey(task.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !ok {
		return ErrTaskExists
	}

	err = s.redis.ZAdd(ctx, ownerKey(task.OwnerID), redis.Z{
		Score:  float64(task.CreatedAt.UnixNano()),
		Member: task.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index task: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Task, error) {
	return s.get(ctx, s.redis, id)
}

func (s *RedisStore) get(ctx context.Context, cmd redis.Cmdable, id string) (*model.Task, error) {
	data, err := cmd.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &task, nil
}

func (s *RedisStore) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]*model.Task, int, error) {
	key := ownerKey(ownerID)

	total, err := s.redis.ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}

	start, end := offset(page, pageSize)
	ids, err := s.redis.ZRevRange(ctx, key, int64(start), int64(end-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []*model.Task{}, int(total), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]*model.Task, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var task model.Task
		if err := json.Unmarshal([]byte(str), &task); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal task %s: %w", ids[i], err)
		}
		tasks = append(tasks, &task)
	}

	// records expire on their own; the index is cleaned lazily
	if len(expired) > 0 {
		s.redis.ZRem(ctx, key, expired...)
		total -= int64(len(expired))
	}

	return tasks, int(total), nil
}

// Update runs mutate inside a WATCH/MULTI transaction and retries when
// another writer touched the record in between.
func (s *RedisStore) Update(ctx context.Context, id string, mutate MutateFunc) (*model.Task, error) {
	key := taskKey(id)
	var updated *model.Task

	txf := func(tx *redis.Tx) error {
		task, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(task); err != nil {
			return err
		}
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = task
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update task %s: too much contention", id)
}
