package storage

import (
	"context"
	"sync"
)

// Memory keeps the most recent matches in process memory, capped at limit.
type Memory struct {
	mu      sync.RWMutex
	limit   int
	records []MatchRecord // oldest first
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 100
	}
	return &Memory{limit: limit}
}

func (m *Memory) SaveMatch(ctx context.Context, rec MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append([]MatchRecord(nil), m.records[over:]...)
	}
	return nil
}

func (m *Memory) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	out := make([]MatchRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
