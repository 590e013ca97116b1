// Package dedup tracks which email IDs have already been ingested so the
// index only embeds new mail.
package dedup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/types"
)

// Filter records ingested email IDs.
type Filter interface {
	// FilterNew returns the emails not seen before, in input order with
	// in-batch duplicates collapsed, and marks them as seen.
	FilterNew(ctx context.Context, emails []*types.Email) ([]*types.Email, error)
	// Unseen is FilterNew without marking anything.
	Unseen(ctx context.Context, emails []*types.Email) ([]*types.Email, error)
	// Mark records ids as seen.
	Mark(ctx context.Context, ids []string) error
	Seen(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Backend names accepted by New.
const (
	BackendJSON  = "json"
	BackendRedis = "redis"
)

// New returns the filter selected by cfg.Dedup.Backend.
func New(cfg config.Config, logger zerolog.Logger) (Filter, error) {
	switch cfg.Dedup.Backend {
	case "", BackendJSON:
		name := cfg.Dedup.File
		if name == "" {
			name = config.DedupFile
		}
		return NewJSONFilter(cfg.Path(name), logger), nil
	case BackendRedis:
		if cfg.Dedup.RedisURL == "" {
			return nil, fmt.Errorf("dedup.redis_url is required for the redis backend (set REDIS_URL)")
		}
		return NewRedisFilter(cfg.Dedup.RedisURL, cfg.Dedup.RedisKey, logger)
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
}

// unique drops emails whose ID already appeared earlier in the batch.
func unique(emails []*types.Email) []*types.Email {
	seen := make(map[string]bool, len(emails))
	out := make([]*types.Email, 0, len(emails))
	for _, e := range emails {
		if e == nil || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

func emailIDs(emails []*types.Email) []string {
	out := make([]string, len(emails))
	for i, e := range emails {
		out[i] = e.ID
	}
	return out
}
