package server

import (
	"math/rand/v2"
	"sync"
	"time"

	"pong-server/internal/pong"
	"pong-server/internal/storage"
)

// Participant is one connected player of a session. Number is the paddle
// slot, 1 (left) or 2 (right).
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number"`
}

// Session is one room's match instance. mu guards participants, playable
// and the match state; the loop holds it for exactly one tick.
type Session struct {
	Key string

	mu           sync.Mutex
	participants []Participant
	state        *pong.MatchState
	playable     bool
	loopStarted  bool
	endReason    storage.EndReason

	// Set when the pair completes.
	matchID   string
	pair      [2]Participant
	startedAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newSession(key string, cfg pong.Config, rng *rand.Rand) *Session {
	return &Session{
		Key:   key,
		state: pong.NewMatchState(cfg, rng),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Participants returns a copy of the participants ordered by slot.
func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked()
}

func (s *Session) participantsLocked() []Participant {
	out := make([]Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *Session) Playable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playable
}

// Snapshot returns a copy of the current match state.
func (s *Session) Snapshot() pong.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Done is closed once the session's loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// spent reports whether this instance already hosted a match that has
// ended. A spent session never becomes playable again. Caller holds mu.
func (s *Session) spent() bool {
	return !s.startedAt.IsZero() && !s.playable
}

// freeSlot returns the lowest slot not held by a participant. Caller holds mu.
func (s *Session) freeSlot() int {
	taken := [3]bool{}
	for _, p := range s.participants {
		if p.Number == 1 || p.Number == 2 {
			taken[p.Number] = true
		}
	}
	if !taken[1] {
		return 1
	}
	return 2
}

func (s *Session) indexOf(id string) int {
	for i, p := range s.participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) participant(id string) (Participant, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.participants[i], true
	}
	return Participant{}, false
}

// stopLocked makes the session unplayable and closes the stop channel once.
// The first reason recorded wins. Caller holds mu.
func (s *Session) stopLocked(reason storage.EndReason) {
	s.playable = false
	if s.endReason == "" {
		s.endReason = reason
	}
	s.stopOnce.Do(func() { close(s.stop) })
}

// tick advances the match by one step. It reports false when the loop must
// stop for good.
func (s *Session) tick() (pong.Snapshot, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playable || len(s.participants) < 2 {
		return pong.Snapshot{}, nil, false
	}

	s.state.Step()

	ids := make([]string, len(s.participants))
	for i, p := range s.participants {
		ids[i] = p.ID
	}
	return s.state.Snapshot(), ids, true
}

// deliver hands a tick's frame to sink unless the session stopped after the
// tick was taken. Holding mu keeps the frame ahead of anything broadcast
// once Leave returns.
func (s *Session) deliver(sink FrameSink, ids []string, frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stop:
		return false
	default:
	}
	sink.SendFrame(ids, frame)
	return true
}

// record summarises the finished match. ok is false when the session was
// never paired.
func (s *Session) record(ended time.Time) (storage.MatchRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startedAt.IsZero() {
		return storage.MatchRecord{}, false
	}
	reason := s.endReason
	if reason == "" {
		reason = storage.EndPlayerLeft
	}
	snap := s.state.Snapshot()
	return storage.MatchRecord{
		ID:        s.matchID,
		Room:      s.Key,
		Player1:   s.pair[0].Name,
		Player2:   s.pair[1].Name,
		Score1:    snap.P1.Score,
		Score2:    snap.P2.Score,
		StartedAt: s.startedAt,
		EndedAt:   ended,
		Reason:    reason,
	}, true
}
