package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/types"
)

// DefaultRedisKey is the set used when no key is configured.
const DefaultRedisKey = "mailagent:ingested"

// RedisFilter keeps ingested IDs in a Redis set.
type RedisFilter struct {
	rdb *redis.Client
	key string
	log zerolog.Logger
}

// NewRedisFilter connects to the Redis server at url.
func NewRedisFilter(url, key string, logger zerolog.Logger) (*RedisFilter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisFilterWithClient(redis.NewClient(opt), key, logger), nil
}

// NewRedisFilterWithClient wraps an existing client.
func NewRedisFilterWithClient(rdb *redis.Client, key string, logger zerolog.Logger) *RedisFilter {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisFilter{
		rdb: rdb,
		key: key,
		log: logger.With().Str("component", "dedup").Str("key", key).Logger(),
	}
}

// FilterNew implements Filter. Each ID is added with SADD in one pipeline;
// an add count of 1 means the ID was new.
func (f *RedisFilter) FilterNew(ctx context.Context, emails []*types.Email) ([]*types.Email, error) {
	batch := unique(emails)
	if len(batch) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.IntCmd, len(batch))
	_, err := f.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, e := range batch {
			cmds[i] = p.SAdd(ctx, f.key, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record ids: %w", err)
	}

	var fresh []*types.Email
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			fresh = append(fresh, batch[i])
		}
	}
	f.log.Debug().Int("new", len(fresh)).Int("batch", len(batch)).Msg("filtered emails")
	return fresh, nil
}

// Unseen implements Filter.
func (f *RedisFilter) Unseen(ctx context.Context, emails []*types.Email) ([]*types.Email, error) {
	batch := unique(emails)
	if len(batch) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.BoolCmd, len(batch))
	_, err := f.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, e := range batch {
			cmds[i] = p.SIsMember(ctx, f.key, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check ids: %w", err)
	}

	var fresh []*types.Email
	for i, cmd := range cmds {
		if !cmd.Val() {
			fresh = append(fresh, batch[i])
		}
	}
	return fresh, nil
}

// Mark implements Filter.
func (f *RedisFilter) Mark(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := f.rdb.SAdd(ctx, f.key, members...).Err(); err != nil {
		return fmt.Errorf("record ids: %w", err)
	}
	f.log.Debug().Int("marked", len(ids)).Msg("recorded ids")
	return nil
}

// Seen implements Filter.
func (f *RedisFilter) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := f.rdb.SIsMember(ctx, f.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("check id: %w", err)
	}
	return ok, nil
}

// Count implements Filter.
func (f *RedisFilter) Count(ctx context.Context) (int, error) {
	n, err := f.rdb.SCard(ctx, f.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count ids: %w", err)
	}
	return int(n), nil
}

// Close implements Filter.
func (f *RedisFilter) Close() error {
	return f.rdb.Close()
}
