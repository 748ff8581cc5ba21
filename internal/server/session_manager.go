package server

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"pong-server/internal/pong"
	"pong-server/internal/storage"
)

type JoinResult struct {
	// ID of the joining participant.
	ID      string
	Slot    int
	Session *Session
	// Start is true when this join completed the pair. The caller starts
	// the session's loop.
	Start bool
	// Participants at the time of the join, ordered by slot.
	Participants []Participant
}

// SessionRegistry maps room keys to live sessions. mu guards only the map;
// lock order is always registry then session.
type SessionRegistry struct {
	sessions map[string]*Session
	mu       sync.Mutex

	cfg     pong.Config
	newRand func() *rand.Rand
	now     func() time.Time
	onJoin  func(JoinResult)
}

func NewSessionRegistry(cfg pong.Config) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		newRand:  func() *rand.Rand { return nil },
		now:      time.Now,
	}
}

// OnJoin registers fn to run for every successful join while the session is
// still locked. Frames fn queues are ordered before anything sent after a
// concurrent Leave. fn must not call back into the registry.
func (r *SessionRegistry) OnJoin(fn func(JoinResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoin = fn
}

// JoinOrCreate adds a participant to the room, creating the session on the
// first join. A full room is left untouched and ErrRoomFull is returned.
func (r *SessionRegistry) JoinOrCreate(roomKey, id, name string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[roomKey]
	if !exists {
		sess = newSession(roomKey, r.cfg, r.newRand())
		r.sessions[roomKey] = sess
	}

	sess.mu.Lock()

	if len(sess.participants) >= 2 {
		sess.mu.Unlock()
		return JoinResult{}, ErrRoomFull
	}
	if _, ok := sess.participant(id); ok {
		sess.mu.Unlock()
		return JoinResult{}, ErrAlreadyJoined
	}

	// A match already ended here; the survivor waits in a spent instance.
	// Carry them into a fresh one so the rematch gets its own state and loop.
	if sess.spent() {
		survivors := sess.participantsLocked()
		sess.mu.Unlock()

		sess = newSession(roomKey, r.cfg, r.newRand())
		sess.participants = survivors
		r.sessions[roomKey] = sess
		sess.mu.Lock()
	}
	defer sess.mu.Unlock()

	slot := sess.freeSlot()
	sess.participants = append(sess.participants, Participant{ID: id, Name: name, Number: slot})
	if len(sess.participants) == 2 && sess.participants[0].Number > sess.participants[1].Number {
		sess.participants[0], sess.participants[1] = sess.participants[1], sess.participants[0]
	}

	result := JoinResult{ID: id, Slot: slot, Session: sess}
	if len(sess.participants) == 2 {
		sess.playable = true
		sess.matchID = uuid.NewString()
		sess.startedAt = r.now()
		sess.pair = [2]Participant{sess.participants[0], sess.participants[1]}
		result.Start = true
	}
	result.Participants = sess.participantsLocked()
	if r.onJoin != nil {
		r.onJoin(result)
	}
	return result, nil
}

// ApplyInput moves the participant's paddle. Unknown rooms, unknown
// participants and sessions that are not playable are ignored.
func (r *SessionRegistry) ApplyInput(roomKey, id string, dir pong.Direction) {
	r.mu.Lock()
	sess, exists := r.sessions[roomKey]
	r.mu.Unlock()
	if !exists {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.playable {
		return
	}
	p, ok := sess.participant(id)
	if !ok {
		return
	}
	if paddle := sess.state.Paddle(p.Number); paddle != nil {
		paddle.Move(dir)
	}
}

// Leave removes the participant and stops the session's match. The room is
// deleted once nobody is left. The remaining participants are returned.
func (r *SessionRegistry) Leave(roomKey, id string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[roomKey]
	if !exists {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	i := sess.indexOf(id)
	if i < 0 {
		return nil
	}
	sess.participants = append(sess.participants[:i], sess.participants[i+1:]...)
	sess.stopLocked(storage.EndPlayerLeft)

	if len(sess.participants) == 0 {
		delete(r.sessions, roomKey)
		return nil
	}
	return sess.participantsLocked()
}

// MarkLoopStarted records that a loop owns the session. It reports false if
// the session was never paired or a loop was already started for this
// instance. A pair that already lost a participant still gets its loop, which
// stops on the first tick and records the match.
func (r *SessionRegistry) MarkLoopStarted(sess *Session) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.loopStarted || sess.startedAt.IsZero() {
		return false
	}
	sess.loopStarted = true
	return true
}

func (r *SessionRegistry) Get(roomKey string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[roomKey]
	return sess, ok
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll makes every session unplayable and returns them.
func (r *SessionRegistry) StopAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sess.mu.Lock()
		sess.stopLocked(storage.EndShutdown)
		sess.mu.Unlock()
		out = append(out, sess)
	}
	return out
}
