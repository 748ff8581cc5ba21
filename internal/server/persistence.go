package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pong-server/internal/events"
	"pong-server/internal/storage"
)

// MatchRecorder writes finished matches to the history store and publishes
// lifecycle events. Every write runs in the background with its own
// timeout; failures are logged and never reach a live session.
type MatchRecorder struct {
	store     storage.Store
	publisher events.Publisher
	timeout   time.Duration
	logger    *slog.Logger
	pending   sync.WaitGroup

	// Closed once a match's start event has been published; the end event
	// waits on it.
	mu      sync.Mutex
	started map[string]chan struct{}
}

func NewMatchRecorder(store storage.Store, publisher events.Publisher, timeout time.Duration, logger *slog.Logger) *MatchRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &MatchRecorder{
		store:     store,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		started:   make(map[string]chan struct{}),
	}
}

// MatchStarted announces a newly paired session.
func (m *MatchRecorder) MatchStarted(sess *Session) {
	sess.mu.Lock()
	ev := events.MatchStarted{
		MatchID:   sess.matchID,
		Room:      sess.Key,
		StartedAt: sess.startedAt,
	}
	for _, p := range sess.pair {
		ev.Players = append(ev.Players, events.Player{Name: p.Name, Number: p.Number})
	}
	sess.mu.Unlock()

	published := make(chan struct{})
	m.mu.Lock()
	m.started[ev.MatchID] = published
	m.mu.Unlock()

	m.async(func(ctx context.Context) {
		defer close(published)
		if err := m.publisher.MatchStarted(ctx, ev); err != nil {
			m.logger.Warn("publish match started failed", "room", ev.Room, "match_id", ev.MatchID, "error", err)
		}
	})
}

// MatchEnded saves the record and announces it once the match's start
// event is out.
func (m *MatchRecorder) MatchEnded(rec storage.MatchRecord) {
	m.mu.Lock()
	published := m.started[rec.ID]
	delete(m.started, rec.ID)
	m.mu.Unlock()

	m.async(func(ctx context.Context) {
		if err := m.store.SaveMatch(ctx, rec); err != nil {
			m.logger.Error("save match failed", "room", rec.Room, "match_id", rec.ID, "error", err)
		} else {
			m.logger.Info("match recorded",
				"room", rec.Room,
				"match_id", rec.ID,
				"score", [2]int{rec.Score1, rec.Score2},
				"reason", rec.Reason)
		}
		if published != nil {
			select {
			case <-published:
			case <-ctx.Done():
			}
		}
		if err := m.publisher.MatchEnded(ctx, rec); err != nil {
			m.logger.Warn("publish match ended failed", "room", rec.Room, "match_id", rec.ID, "error", err)
		}
	})
}

func (m *MatchRecorder) RecentMatches(ctx context.Context, limit int) ([]storage.MatchRecord, error) {
	return m.store.RecentMatches(ctx, limit)
}

func (m *MatchRecorder) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Wait blocks until every pending write has finished or ctx ends.
func (m *MatchRecorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MatchRecorder) async(fn func(ctx context.Context)) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		fn(ctx)
	}()
}
