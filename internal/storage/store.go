// Package storage keeps a history of finished matches. Live sessions are
// never stored or restored; only the summary of a match that has ended.
package storage

import (
	"context"
	"errors"
	"time"
)

type EndReason string

const (
	EndPlayerLeft EndReason = "player_left"
	EndShutdown   EndReason = "shutdown"
	EndFault      EndReason = "fault"
)

var ErrInvalidRecord = errors.New("INVALID_RECORD: match record is missing required fields")

type MatchRecord struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Player1   string    `json:"player1"`
	Player2   string    `json:"player2"`
	Score1    int       `json:"score1"`
	Score2    int       `json:"score2"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Reason    EndReason `json:"reason"`
}

func (r MatchRecord) Validate() error {
	if r.ID == "" || r.Room == "" || r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

// Store persists match records. RecentMatches returns newest first.
type Store interface {
	SaveMatch(ctx context.Context, rec MatchRecord) error
	RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error)
	Ping(ctx context.Context) error
	Close() error
}
