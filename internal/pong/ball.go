package pong

import "math/rand/v2"

// Side identifies which paddle last touched the ball.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

type Ball struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
	Last Side    `json:"last"`

	cfg Config
	rng *rand.Rand
}

// NewBall returns a ball at the arena centre travelling along a random
// diagonal. A nil rng uses the package-level source.
func NewBall(cfg Config, rng *rand.Rand) Ball {
	b := Ball{cfg: cfg, rng: rng}
	b.Reset()
	return b
}

func (b *Ball) randomDir() float64 {
	var heads bool
	if b.rng != nil {
		heads = b.rng.IntN(2) == 1
	} else {
		heads = rand.IntN(2) == 1
	}
	if heads {
		return b.cfg.BallSpeed
	}
	return -b.cfg.BallSpeed
}

// Reset re-centres the ball and picks a fresh diagonal direction.
func (b *Ball) Reset() {
	b.X = b.cfg.Width / 2
	b.Y = b.cfg.Height / 2
	b.DX = b.randomDir()
	b.DY = b.randomDir()
	b.Last = SideNone
}

func (b *Ball) Advance() {
	b.X += b.DX
	b.Y += b.DY
}

func (b *Ball) ReflectVertical() {
	b.DY = -b.DY
}

// OutOfVerticalBounds reports whether the ball touches the top or bottom wall.
func (b *Ball) OutOfVerticalBounds() bool {
	return b.Y <= 0 || b.Y >= b.cfg.Height-b.cfg.BallSize
}

// ResolvePaddleContact checks the ball against the paddle guarding side and,
// on overlap, records the contact and forces DX away from that side.
//
// The check is level-triggered: while the ball keeps overlapping the paddle
// the sign is re-forced every tick to the same value.
func (b *Ball) ResolvePaddleContact(p *Paddle, side Side) bool {
	if !p.Contains(b.Y) {
		return false
	}

	switch side {
	case SideLeft:
		if b.X > b.cfg.PaddleOffset+b.cfg.PaddleWidth {
			return false
		}
		b.DX = abs(b.DX)
	case SideRight:
		if b.X < b.cfg.Width-b.cfg.PaddleOffset-b.cfg.PaddleWidth-b.cfg.BallSize {
			return false
		}
		b.DX = -abs(b.DX)
	default:
		return false
	}

	b.Last = side
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
