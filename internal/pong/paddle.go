package pong

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type Paddle struct {
	Y      float64 `json:"y"`
	Height float64 `json:"paddleHeight"`
	Speed  float64 `json:"speed"`
	Score  int     `json:"score"`

	arenaHeight float64
}

// NewPaddle returns a paddle vertically centred in the arena.
func NewPaddle(cfg Config) Paddle {
	return Paddle{
		Y:           cfg.Height/2 - cfg.PaddleHeight/2,
		Height:      cfg.PaddleHeight,
		Speed:       cfg.PaddleSpeed,
		arenaHeight: cfg.Height,
	}
}

// Move shifts the paddle one step and clamps it to [0, arenaHeight-Height].
// Unknown directions are ignored.
func (p *Paddle) Move(dir Direction) {
	switch dir {
	case DirectionUp:
		p.Y = max(0, p.Y-p.Speed)
	case DirectionDown:
		p.Y = min(p.arenaHeight-p.Height, p.Y+p.Speed)
	}
}

// Contains reports whether y lies on the paddle's vertical extent.
func (p *Paddle) Contains(y float64) bool {
	return y >= p.Y && y <= p.Y+p.Height
}
