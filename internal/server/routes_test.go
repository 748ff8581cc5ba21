package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pong-server/internal/config"
	"pong-server/internal/events"
	"pong-server/internal/pong"
	"pong-server/internal/storage"
)

type testMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func setupTestServer() (*Server, string, func()) {
	return setupTestServerWith(config.Default())
}

func setupTestServerWith(cfg *config.Config) (*Server, string, func()) {
	s := newServer(cfg, discardLogger(), storage.NewMemory(10), events.Nop{})

	server := httptest.NewServer(s.RegisterRoutes())
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		server.Close()
	}

	return s, url, cleanup
}

func httpURL(wsURL string) string {
	return "http" + strings.TrimSuffix(strings.TrimPrefix(wsURL, "ws"), "/websocket")
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg := ClientMessage{Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	err := conn.Write(context.Background(), websocket.MessageText, mustMarshal(msg))
	require.NoError(t, err)
}

func readMessage(t *testing.T, conn *websocket.Conn) testMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg testMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readUntil skips frames until one of msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) testMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message received", msgType)
	return testMessage{}
}

func decodeError(t *testing.T, msg testMessage) ErrorMessage {
	t.Helper()
	require.Equal(t, TypeError, msg.Type)
	var e ErrorMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	return e
}

// joinPair joins A then B to room and waits for both start_game messages.
func joinPair(t *testing.T, url, room string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	a := dial(t, url)
	send(t, a, TypeJoinRoom, JoinRoomRequest{Name: "A", Room: room})
	readUntil(t, a, TypeAssignedPlayer)

	b := dial(t, url)
	send(t, b, TypeJoinRoom, JoinRoomRequest{Name: "B", Room: room})
	readUntil(t, b, TypeAssignedPlayer)

	readUntil(t, a, TypeStartGame)
	readUntil(t, b, TypeStartGame)
	return a, b
}

func TestHealthHandler(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	resp, err := http.Get(httpURL(url) + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Rooms)
	assert.Equal(t, "ok", body.Store)
}

func TestMatchesHandler(t *testing.T) {
	s, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	now := time.Now().UTC()
	for _, id := range []string{"m1", "m2"} {
		require.NoError(t, s.recorder.store.SaveMatch(context.Background(), storage.MatchRecord{
			ID: id, Room: "R1", Player1: "A", Player2: "B",
			StartedAt: now, EndedAt: now, Reason: storage.EndPlayerLeft,
		}))
	}

	resp, err := http.Get(httpURL(url) + "/matches?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body MatchesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "m2", body.Matches[0].ID)

	bad, err := http.Get(httpURL(url) + "/matches?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestMatchesHandler_Empty(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	resp, err := http.Get(httpURL(url) + "/matches")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"matches":[]}`, string(body))
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>pong</h1>"), 0o644))

	cfg := config.Default()
	cfg.Server.StaticDir = dir
	_, url, cleanup := setupTestServerWith(cfg)
	t.Cleanup(cleanup)

	resp, err := http.Get(httpURL(url) + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<h1>pong</h1>")
}

func TestWebSocketPingPong(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	conn := dial(t, url)
	send(t, conn, TypePing, nil)

	msg := readMessage(t, conn)
	assert.Equal(t, TypePong, msg.Type)
}

func TestWebSocketInvalidJSON(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	conn := dial(t, url)
	err := conn.Write(context.Background(), websocket.MessageText, []byte("junk"))
	require.NoError(t, err)

	e := decodeError(t, readMessage(t, conn))
	assert.Equal(t, "INVALID_PAYLOAD", e.Code)

	// Connection stays usable
	send(t, conn, TypePing, nil)
	assert.Equal(t, TypePong, readMessage(t, conn).Type)
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	conn := dial(t, url)
	send(t, conn, "create_game", nil)

	e := decodeError(t, readMessage(t, conn))
	assert.Equal(t, "INVALID_MESSAGE_TYPE", e.Code)
	assert.Contains(t, e.Message, "create_game")
}

// Test: Two joins pair up, get slots 1 and 2 and start streaming state
func TestJoinRoom_PairStartsGame(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	a := dial(t, url)
	send(t, a, TypeJoinRoom, JoinRoomRequest{Name: "A", Room: "R1"})

	msg := readMessage(t, a)
	require.Equal(t, TypeAssignedPlayer, msg.Type)
	var assigned AssignedPlayerResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &assigned))
	assert.Equal(t, 1, assigned.Number)
	assert.Equal(t, pong.DefaultConfig(), assigned.Config)

	b := dial(t, url)
	send(t, b, TypeJoinRoom, JoinRoomRequest{Name: "B", Room: "R1"})

	msg = readMessage(t, b)
	require.Equal(t, TypeAssignedPlayer, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &assigned))
	assert.Equal(t, 2, assigned.Number)

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readUntil(t, conn, TypeStartGame)
		var players []Participant
		require.NoError(t, json.Unmarshal(msg.Payload, &players))
		require.Len(t, players, 2)
		assert.Equal(t, "A", players[0].Name)
		assert.Equal(t, 1, players[0].Number)
		assert.Equal(t, "B", players[1].Name)
		assert.Equal(t, 2, players[1].Number)

		msg = readUntil(t, conn, TypeUpdateState)
		var snap pong.Snapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		assert.Equal(t, 100.0, snap.P1.PaddleHeight)
		assert.Equal(t, 5.0, abs(snap.Ball.DX))
	}
}

// Test: A third player is turned away
func TestJoinRoom_RoomFull(t *testing.T) {
	s, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	joinPair(t, url, "R1")

	c := dial(t, url)
	send(t, c, TypeJoinRoom, JoinRoomRequest{Name: "C", Room: "R1"})
	msg := readMessage(t, c)
	assert.Equal(t, TypeRoomFull, msg.Type)
	assert.JSONEq(t, `{}`, string(msg.Payload))

	sess, ok := s.registry.Get("R1")
	require.True(t, ok)
	assert.Len(t, sess.Participants(), 2)

	// The rejected connection can still join elsewhere
	send(t, c, TypeJoinRoom, JoinRoomRequest{Name: "C", Room: "R2"})
	assert.Equal(t, TypeAssignedPlayer, readMessage(t, c).Type)
}

func TestJoinRoom_InvalidJoin(t *testing.T) {
	s, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	conn := dial(t, url)

	send(t, conn, TypeJoinRoom, JoinRoomRequest{Name: "", Room: "R1"})
	assert.Equal(t, "INVALID_JOIN", decodeError(t, readMessage(t, conn)).Code)

	send(t, conn, TypeJoinRoom, JoinRoomRequest{Name: "A", Room: "  "})
	assert.Equal(t, "INVALID_JOIN", decodeError(t, readMessage(t, conn)).Code)

	send(t, conn, TypeJoinRoom, "not an object")
	assert.Equal(t, "INVALID_PAYLOAD", decodeError(t, readMessage(t, conn)).Code)

	assert.Equal(t, 0, s.registry.Len())
}

func TestJoinRoom_AlreadyJoined(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	conn := dial(t, url)
	send(t, conn, TypeJoinRoom, JoinRoomRequest{Name: "A", Room: "R1"})
	readUntil(t, conn, TypeAssignedPlayer)

	send(t, conn, TypeJoinRoom, JoinRoomRequest{Name: "A", Room: "R2"})
	assert.Equal(t, "ALREADY_JOINED", decodeError(t, readMessage(t, conn)).Code)
}

// Test: Paddle input shows up in the broadcast state
func TestMovePaddle(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	a, _ := joinPair(t, url, "R1")
	send(t, a, TypeMovePaddle, pong.DirectionUp)

	cfg := pong.DefaultConfig()
	want := cfg.Height/2 - cfg.PaddleHeight/2 - cfg.PaddleSpeed

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := readUntil(t, a, TypeUpdateState)
		var snap pong.Snapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		if snap.P1.Y == want {
			assert.Equal(t, cfg.Height/2-cfg.PaddleHeight/2, snap.P2.Y)
			return
		}
	}
	t.Fatal("paddle move never appeared in update_state")
}

func TestMovePaddle_InvalidPayload(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	conn := dial(t, url)
	send(t, conn, TypeMovePaddle, map[string]string{"dir": "up"})
	assert.Equal(t, "INVALID_PAYLOAD", decodeError(t, readMessage(t, conn)).Code)

	// Input before joining is ignored
	send(t, conn, TypeMovePaddle, pong.DirectionUp)
	send(t, conn, TypePing, nil)
	assert.Equal(t, TypePong, readMessage(t, conn).Type)
}

// Test: Closing one side notifies the other and records the match
func TestDisconnect_NotifiesSurvivor(t *testing.T) {
	s, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	a, b := joinPair(t, url, "R1")
	readUntil(t, a, TypeUpdateState)

	b.Close(websocket.StatusNormalClosure, "bye")

	msg := readUntil(t, a, TypePlayerDisconnected)
	assert.JSONEq(t, `{}`, string(msg.Payload))

	sess, ok := s.registry.Get("R1")
	require.True(t, ok)
	assert.False(t, sess.Playable())
	assert.Len(t, sess.Participants(), 1)

	var matches []storage.MatchRecord
	assert.Eventually(t, func() bool {
		matches, _ = s.recorder.RecentMatches(context.Background(), 0)
		return len(matches) == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Len(t, matches, 1)
	assert.Equal(t, "R1", matches[0].Room)
	assert.Equal(t, "A", matches[0].Player1)
	assert.Equal(t, "B", matches[0].Player2)
	assert.Equal(t, storage.EndPlayerLeft, matches[0].Reason)
}

// Test: The last player leaving removes the room
func TestDisconnect_LastPlayerRemovesRoom(t *testing.T) {
	s, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	a, b := joinPair(t, url, "R1")
	b.Close(websocket.StatusNormalClosure, "")
	readUntil(t, a, TypePlayerDisconnected)
	a.Close(websocket.StatusNormalClosure, "")

	assert.Eventually(t, func() bool { return s.registry.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
}

// Test: A newcomer to a room whose match ended gets a fresh match
func TestRematch(t *testing.T) {
	_, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	a, b := joinPair(t, url, "R1")
	b.Close(websocket.StatusNormalClosure, "")
	readUntil(t, a, TypePlayerDisconnected)

	c := dial(t, url)
	send(t, c, TypeJoinRoom, JoinRoomRequest{Name: "C", Room: "R1"})

	msg := readUntil(t, c, TypeAssignedPlayer)
	var assigned AssignedPlayerResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &assigned))
	assert.Equal(t, 2, assigned.Number)

	msg = readUntil(t, a, TypeStartGame)
	var players []Participant
	require.NoError(t, json.Unmarshal(msg.Payload, &players))
	require.Len(t, players, 2)
	assert.Equal(t, "A", players[0].Name)
	assert.Equal(t, "C", players[1].Name)

	msg = readUntil(t, c, TypeUpdateState)
	var snap pong.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	assert.Equal(t, 0, snap.P1.Score+snap.P2.Score)
}

func TestWebSocketRateLimiting(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MessagesPerSecond = 3
	_, url, cleanup := setupTestServerWith(cfg)
	t.Cleanup(cleanup)

	conn := dial(t, url)
	for i := 0; i < 6; i++ {
		send(t, conn, TypePing, nil)
	}

	pongs, limited := 0, 0
	for i := 0; i < 6; i++ {
		msg := readMessage(t, conn)
		switch msg.Type {
		case TypePong:
			pongs++
		case TypeError:
			assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, msg).Code)
			limited++
		}
	}
	assert.Equal(t, 3, pongs)
	assert.Equal(t, 3, limited)
}

// Test: Shutdown stops running matches and records them
func TestShutdown_RecordsMatches(t *testing.T) {
	s, url, cleanup := setupTestServer()
	t.Cleanup(cleanup)

	a, _ := joinPair(t, url, "R1")
	readUntil(t, a, TypeUpdateState)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	matches, err := s.recorder.RecentMatches(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, storage.EndShutdown, matches[0].Reason)

	sess, ok := s.registry.Get("R1")
	if ok {
		assert.False(t, sess.Playable())
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
