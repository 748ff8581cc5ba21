package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres migrates the schema and opens a connection pool.
func OpenPostgres(ctx context.Context, url string, logger *slog.Logger) (*Postgres, error) {
	if err := Migrate(url, logger); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	config.MaxConns = 5
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgres(pool), nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) SaveMatch(ctx context.Context, rec MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO matches (id, room, player1, player2, score1, score2, started_at, ended_at, reason)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := p.pool.Exec(ctx, query,
		rec.ID,
		rec.Room,
		rec.Player1,
		rec.Player2,
		rec.Score1,
		rec.Score2,
		rec.StartedAt,
		rec.EndedAt,
		string(rec.Reason),
	)
	if err != nil {
		return fmt.Errorf("save match %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id::text, room, player1, player2, score1, score2, started_at, ended_at, reason
		FROM matches
		ORDER BY ended_at DESC
		LIMIT $1
	`
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		var reason string
		if err := rows.Scan(
			&rec.ID,
			&rec.Room,
			&rec.Player1,
			&rec.Player2,
			&rec.Score1,
			&rec.Score2,
			&rec.StartedAt,
			&rec.EndedAt,
			&reason,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		rec.Reason = EndReason(reason)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
