package pong

import "math/rand/v2"

// MatchState is the authoritative state of one match. It is not safe for
// concurrent use; callers serialize access with the owning session's lock.
type MatchState struct {
	Ball Ball   `json:"ball"`
	P1   Paddle `json:"p1"`
	P2   Paddle `json:"p2"`

	cfg Config
}

func NewMatchState(cfg Config, rng *rand.Rand) *MatchState {
	return &MatchState{
		Ball: NewBall(cfg, rng),
		P1:   NewPaddle(cfg),
		P2:   NewPaddle(cfg),
		cfg:  cfg,
	}
}

// Paddle returns the paddle owned by slot 1 or 2, or nil.
func (s *MatchState) Paddle(slot int) *Paddle {
	switch slot {
	case 1:
		return &s.P1
	case 2:
		return &s.P2
	}
	return nil
}

// Step advances the match by one tick and returns the side that scored, if
// any. The order is fixed: advance, wall reflection, left contact, right
// contact, scoring.
func (s *MatchState) Step() Side {
	b := &s.Ball

	b.Advance()

	if b.OutOfVerticalBounds() {
		b.ReflectVertical()
	}

	b.ResolvePaddleContact(&s.P1, SideLeft)
	b.ResolvePaddleContact(&s.P2, SideRight)

	switch {
	case b.X <= 0:
		s.P2.Score++
		b.Reset()
		return SideRight
	case b.X >= s.cfg.Width:
		s.P1.Score++
		b.Reset()
		return SideLeft
	}
	return SideNone
}

type BallSnapshot struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
	Last Side    `json:"last"`
}

type PaddleSnapshot struct {
	Y            float64 `json:"y"`
	PaddleHeight float64 `json:"paddleHeight"`
	Score        int     `json:"score"`
}

// Snapshot is the per-tick value broadcast to clients.
type Snapshot struct {
	Ball BallSnapshot   `json:"ball"`
	P1   PaddleSnapshot `json:"p1"`
	P2   PaddleSnapshot `json:"p2"`
}

func (s *MatchState) Snapshot() Snapshot {
	return Snapshot{
		Ball: BallSnapshot{X: s.Ball.X, Y: s.Ball.Y, DX: s.Ball.DX, DY: s.Ball.DY, Last: s.Ball.Last},
		P1:   PaddleSnapshot{Y: s.P1.Y, PaddleHeight: s.P1.Height, Score: s.P1.Score},
		P2:   PaddleSnapshot{Y: s.P2.Y, PaddleHeight: s.P2.Height, Score: s.P2.Score},
	}
}
