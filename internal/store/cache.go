package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/btouchard/taskpulse/internal/task"
)

// generationTTL bounds how long a task's write generation outlives its last
// write. It only has to exceed the longest base read.
const generationTTL = time.Hour

// Cache wraps a task.Store with a Redis read-through cache for single-task
// reads. Every successful write evicts the task's entries and bumps its
// generation before returning. A read-through fill only lands when the
// generation is unchanged since the base read began, so a row read before a
// concurrent write is never cached after it.
type Cache struct {
	base  task.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client turns the cache into a pass-through.
func NewCache(base task.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("store.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) GetTask(ctx context.Context, id int64, fetch task.Fetch) (*task.Task, error) {
	if t, ok := c.load(ctx, id, fetch); ok {
		return t, nil
	}

	gen, ok := c.generation(ctx, id)

	t, err := c.base.GetTask(ctx, id, fetch)
	if err != nil {
		return nil, err
	}

	if ok {
		c.store(ctx, t, fetch, gen)
	}
	return t, nil
}

func (c *Cache) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	return c.base.CreateTask(ctx, t)
}

func (c *Cache) ListTasks(ctx context.Context, f task.Filter) ([]task.Task, error) {
	return c.base.ListTasks(ctx, f)
}

func (c *Cache) SaveTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	saved, err := c.base.SaveTask(ctx, t)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, t.ID)
	return saved, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) load(ctx context.Context, id int64, fetch task.Fetch) (*task.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := taskCacheKey(id, fetch)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing store without failing.
			slog.Debug("task cache read failed", "key", key, "error", err)
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return &t, true
}

// generation reports the task's current write generation. ok is false when
// Redis cannot be read, in which case the fill is skipped.
func (c *Cache) generation(ctx context.Context, id int64) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

func (c *Cache) store(ctx context.Context, t *task.Task, fetch task.Fetch, gen int64) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	genKey := generationKey(t.ID)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, taskCacheKey(t.ID, fetch), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		slog.Debug("task cache fill skipped after concurrent write", "task_id", t.ID)
	default:
		slog.Debug("task cache write failed", "task_id", t.ID, "error", err)
	}
}

func (c *Cache) evict(ctx context.Context, id int64) {
	if c.redis == nil {
		return
	}
	genKey := generationKey(id)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, taskCacheKey(id, task.FetchTask), taskCacheKey(id, task.FetchWithUsers))
		return nil
	})
	if err != nil {
		slog.Warn("task cache eviction failed", "task_id", id, "error", err)
	}
}

var errStaleFill = errors.New("task changed during read")

func taskCacheKey(id int64, fetch task.Fetch) string {
	return fmt.Sprintf("task:%d:%d", id, fetch)
}

func generationKey(id int64) string {
	return fmt.Sprintf("task:%d:gen", id)
}
