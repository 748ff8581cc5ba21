package pong

import "fmt"

// Config holds the arena, ball and paddle parameters of a match. It is sent
// to clients verbatim in assigned_player, so the JSON names match what the
// browser renderer expects.
type Config struct {
	Width        float64 `json:"width" yaml:"width"`
	Height       float64 `json:"height" yaml:"height"`
	BallSpeed    float64 `json:"ballSpeed" yaml:"ball_speed"`
	BallSize     float64 `json:"ballSize" yaml:"ball_size"`
	PaddleWidth  float64 `json:"paddleWidth" yaml:"paddle_width"`
	PaddleHeight float64 `json:"paddleHeight" yaml:"paddle_height"`
	PaddleSpeed  float64 `json:"paddleSpeed" yaml:"paddle_speed"`
	PaddleOffset float64 `json:"paddleOffset" yaml:"paddle_offset"` // gap between arena edge and paddle
}

func DefaultConfig() Config {
	return Config{
		Width:        800,
		Height:       400,
		BallSpeed:    5,
		BallSize:     10,
		PaddleWidth:  10,
		PaddleHeight: 100,
		PaddleSpeed:  10,
		PaddleOffset: 20,
	}
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("INVALID_CONFIG: arena must be positive, got %vx%v", c.Width, c.Height)
	}
	if c.BallSpeed <= 0 {
		return fmt.Errorf("INVALID_CONFIG: ball speed must be positive, got %v", c.BallSpeed)
	}
	if c.BallSize <= 0 || c.BallSize >= c.Height {
		return fmt.Errorf("INVALID_CONFIG: ball size %v does not fit arena height %v", c.BallSize, c.Height)
	}
	if c.PaddleHeight <= 0 || c.PaddleHeight > c.Height {
		return fmt.Errorf("INVALID_CONFIG: paddle height %v does not fit arena height %v", c.PaddleHeight, c.Height)
	}
	if c.PaddleWidth <= 0 || c.PaddleSpeed <= 0 {
		return fmt.Errorf("INVALID_CONFIG: paddle width and speed must be positive")
	}
	if c.PaddleOffset < 0 || 2*(c.PaddleOffset+c.PaddleWidth) >= c.Width {
		return fmt.Errorf("INVALID_CONFIG: paddle offset %v does not fit arena width %v", c.PaddleOffset, c.Width)
	}
	return nil
}
