// Package events publishes match lifecycle notifications to NATS so other
// services can follow matches without polling the server.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"pong-server/internal/storage"
)

const (
	SubjectMatchStarted = "match.started"
	SubjectMatchEnded   = "match.ended"
)

type Player struct {
	Name   string `json:"name"`
	Number int    `json:"number"`
}

type MatchStarted struct {
	MatchID   string    `json:"matchId"`
	Room      string    `json:"room"`
	Players   []Player  `json:"players"`
	StartedAt time.Time `json:"startedAt"`
}

type Publisher interface {
	MatchStarted(ctx context.Context, ev MatchStarted) error
	MatchEnded(ctx context.Context, rec storage.MatchRecord) error
	Close() error
}

// Nop discards every event. It is used when no NATS URL is configured.
type Nop struct{}

func (Nop) MatchStarted(context.Context, MatchStarted) error        { return nil }
func (Nop) MatchEnded(context.Context, storage.MatchRecord) error { return nil }
func (Nop) Close() error                                          { return nil }

type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials NATS and keeps reconnecting in the background for the life
// of the publisher.
func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("pong-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

func (p *NATSPublisher) Subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

func (p *NATSPublisher) MatchStarted(ctx context.Context, ev MatchStarted) error {
	return p.publish(ctx, SubjectMatchStarted, ev)
}

func (p *NATSPublisher) MatchEnded(ctx context.Context, rec storage.MatchRecord) error {
	return p.publish(ctx, SubjectMatchEnded, rec)
}

func (p *NATSPublisher) publish(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	subject := p.Subject(name)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
