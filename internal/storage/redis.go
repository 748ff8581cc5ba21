package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisHistoryKey = "pong:matches"

// Redis keeps match history as a capped list of JSON documents, newest at
// the head.
type Redis struct {
	client *redis.Client
	limit  int64
}

func NewRedis(client *redis.Client, limit int) *Redis {
	if limit <= 0 {
		limit = 100
	}
	return &Redis{client: client, limit: int64(limit)}
}

func (r *Redis) SaveMatch(ctx context.Context, rec MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", rec.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, redisHistoryKey, data)
	pipe.LTrim(ctx, redisHistoryKey, 0, r.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save match %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Redis) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	stop := int64(limit) - 1
	if limit <= 0 || int64(limit) > r.limit {
		stop = r.limit - 1
	}

	items, err := r.client.LRange(ctx, redisHistoryKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read matches: %w", err)
	}

	out := make([]MatchRecord, 0, len(items))
	for _, item := range items {
		var rec MatchRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode match: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
