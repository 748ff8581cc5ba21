package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"pong-server/internal/storage"
)

const TickRate = 60

// FrameSink delivers an encoded frame to a set of connections without
// blocking the caller.
type FrameSink interface {
	SendFrame(connectionIDs []string, frame []byte)
}

// runLoop drives one session at a fixed period until it becomes unplayable,
// loses a participant or panics. It closes the session's done channel on
// return.
func runLoop(sess *Session, period time.Duration, sink FrameSink, logger *slog.Logger) (reason storage.EndReason) {
	logger = logger.With("room", sess.Key)

	defer close(sess.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("simulation loop panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			sess.mu.Lock()
			sess.stopLocked(storage.EndFault)
			reason = sess.endReason
			sess.mu.Unlock()
		}
	}()

	logger.Info("simulation loop started")

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stop:
			return loopEndReason(sess, logger)
		case <-ticker.C:
		}

		snap, ids, ok := sess.tick()
		if !ok {
			return loopEndReason(sess, logger)
		}

		frame, err := json.Marshal(ServerMessage{Type: TypeUpdateState, Payload: UpdateStateNotification(snap)})
		if err != nil {
			logger.Error("encode state failed", "error", err)
			continue
		}
		sess.deliver(sink, ids, frame)
	}
}

func loopEndReason(sess *Session, logger *slog.Logger) storage.EndReason {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Stopped without an explicit cause, e.g. fewer than two participants.
	sess.stopLocked(storage.EndPlayerLeft)

	logger.Info("simulation loop stopped", "reason", sess.endReason)
	return sess.endReason
}
