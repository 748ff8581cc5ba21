package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const writeWait = 5 * time.Second

// Connection is one websocket client. Outbound frames go through a bounded
// queue drained by writePump; a full queue drops the frame.
type Connection struct {
	ID     string
	socket *websocket.Conn
	send   chan []byte

	room    atomic.Value // string
	dropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// Room returns the room key this connection joined, or "".
func (c *Connection) Room() string {
	room, _ := c.room.Load().(string)
	return room
}

// Dropped is the number of frames discarded because the queue was full.
func (c *Connection) Dropped() int64 {
	return c.dropped.Load()
}

// Enqueue queues a frame without blocking. It reports false if the frame
// was dropped.
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump writes queued frames to the socket until the connection is
// removed or ctx ends.
func (c *Connection) writePump(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.socket.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				logger.Debug("write failed", "connection_id", c.ID, "error", err)
				return
			}
		}
	}
}

type ConnectionManager struct {
	connections map[string]*Connection // connectionID → connection
	bufferSize  int
	mu          sync.RWMutex
}

func NewConnectionManager(bufferSize int) *ConnectionManager {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		bufferSize:  bufferSize,
	}
}

func (cm *ConnectionManager) AddConnection(id string, socket *websocket.Conn) *Connection {
	conn := &Connection{
		ID:     id,
		socket: socket,
		send:   make(chan []byte, cm.bufferSize),
		done:   make(chan struct{}),
	}
	conn.room.Store("")

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
	return conn
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	conn, exists := cm.connections[id]
	delete(cm.connections, id)
	cm.mu.Unlock()

	if exists {
		conn.close()
	}
}

// GetConnection returns the connection for connectionID, or nil.
func (cm *ConnectionManager) GetConnection(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[id]
}

// SetRoom records the room a connection joined.
func (cm *ConnectionManager) SetRoom(id, room string) {
	if conn := cm.GetConnection(id); conn != nil {
		conn.room.Store(room)
	}
}

// GetRoom returns the room a connection joined, or "".
func (cm *ConnectionManager) GetRoom(id string) string {
	if conn := cm.GetConnection(id); conn != nil {
		return conn.Room()
	}
	return ""
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// Send encodes msg and queues it for one connection.
func (cm *ConnectionManager) Send(id string, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	cm.SendFrame([]string{id}, data)
	return nil
}

// Broadcast encodes msg once and queues it for every connection in ids.
func (cm *ConnectionManager) Broadcast(ids []string, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	cm.SendFrame(ids, data)
	return nil
}

// SendFrame queues an already encoded frame. Unknown connections and full
// queues are skipped.
func (cm *ConnectionManager) SendFrame(ids []string, frame []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := cm.connections[id]; ok {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		conn.Enqueue(frame)
	}
}

// CloseAll closes every socket with the given status and waits for the
// close handshakes to finish.
func (cm *ConnectionManager) CloseAll(code websocket.StatusCode, reason string) {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	var g errgroup.Group
	for _, conn := range conns {
		conn.close()
		if conn.socket == nil {
			continue
		}
		socket := conn.socket
		g.Go(func() error {
			return socket.Close(code, reason)
		})
	}
	// Peers that already hung up fail the handshake; nothing to do about it.
	_ = g.Wait()
}
