package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"pong-server/internal/config"
)

// Open builds the Store selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	sc := cfg.Storage

	switch sc.Driver {
	case config.DriverMemory, "":
		logger.Info("match history kept in memory", "limit", sc.HistoryLimit)
		return NewMemory(sc.HistoryLimit), nil

	case config.DriverPostgres:
		pg, err := OpenPostgres(ctx, sc.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("match history stored in postgres")
		return pg, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", sc.RedisAddr, err)
		}
		logger.Info("match history stored in redis", "addr", sc.RedisAddr, "limit", sc.HistoryLimit)
		return NewRedis(client, sc.HistoryLimit), nil

	default:
		return nil, fmt.Errorf("INVALID_CONFIG: unknown storage driver %q", sc.Driver)
	}
}
