package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"pong-server/internal/config"
	"pong-server/internal/events"
	"pong-server/internal/storage"
)

type Server struct {
	cfg               *config.Config
	logger            *slog.Logger
	registry          *SessionRegistry
	connectionManager *ConnectionManager
	rateLimiter       *RateLimiter
	recorder          *MatchRecorder
	tickPeriod        time.Duration

	loopMu  sync.Mutex
	closing bool
	loops   sync.WaitGroup

	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer wires the game server and the HTTP server that exposes it.
func NewServer(cfg *config.Config, logger *slog.Logger, store storage.Store, publisher events.Publisher) (*Server, *http.Server) {
	s := newServer(cfg, logger, store, publisher)

	go s.cleanupTask()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, httpServer
}

func newServer(cfg *config.Config, logger *slog.Logger, store storage.Store, publisher events.Publisher) *Server {
	s := &Server{
		cfg:               cfg,
		logger:            logger,
		registry:          NewSessionRegistry(cfg.Game),
		connectionManager: NewConnectionManager(cfg.Limits.SendBuffer),
		rateLimiter:       NewRateLimiter(cfg.Limits.MessagesPerSecond, time.Second),
		recorder:          NewMatchRecorder(store, publisher, cfg.Storage.WriteTimeout, logger),
		tickPeriod:        time.Second / TickRate,
		quit:              make(chan struct{}),
	}
	s.registry.OnJoin(s.announceJoin)
	return s
}

// startLoop runs the session's simulation loop once and records the match
// when it ends.
func (s *Server) startLoop(sess *Session) {
	s.loopMu.Lock()
	if s.closing {
		s.loopMu.Unlock()
		return
	}
	if !s.registry.MarkLoopStarted(sess) {
		s.loopMu.Unlock()
		return
	}
	s.loops.Add(1)
	s.loopMu.Unlock()

	s.recorder.MatchStarted(sess)

	go func() {
		defer s.loops.Done()
		runLoop(sess, s.tickPeriod, s.connectionManager, s.logger)
		if rec, ok := sess.record(time.Now().UTC()); ok {
			s.recorder.MatchEnded(rec)
		}
	}()
}

// Shutdown stops every session, waits for the loops and pending match
// records, then closes all connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })

	s.loopMu.Lock()
	s.closing = true
	s.loopMu.Unlock()

	sessions := s.registry.StopAll()
	s.logger.Info("stopping sessions", "count", len(sessions))

	done := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		err = s.recorder.Wait(ctx)
	case <-ctx.Done():
		err = fmt.Errorf("waiting for simulation loops: %w", ctx.Err())
	}

	s.connectionManager.CloseAll(websocket.StatusGoingAway, "Server shutting down")
	return err
}

// cleanupTask forgets idle rate limiter entries every minute.
func (s *Server) cleanupTask() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup()
		}
	}
}
