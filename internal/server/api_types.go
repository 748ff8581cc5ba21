package server

import (
	"pong-server/internal/pong"
	"pong-server/internal/storage"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// JOIN ROOM (join_room)
// ============================================================================
// tygo:generate
type JoinRoomRequest struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// tygo:generate
type AssignedPlayerResponse struct {
	Number int         `json:"number"`
	Config pong.Config `json:"config"`
}

// tygo:generate
type RoomFullNotification struct{}

// ============================================================================
// MOVE PADDLE (move_paddle)
// ============================================================================
// The payload is a bare JSON string, "up" or "down".
// tygo:generate
type MovePaddleRequest = pong.Direction

// ============================================================================
// START GAME (start_game broadcast)
// ============================================================================
// Participants ordered by slot.
// tygo:generate
type StartGameNotification []Participant

// ============================================================================
// UPDATE STATE (update_state broadcast, every tick)
// ============================================================================
// tygo:generate
type UpdateStateNotification = pong.Snapshot

// ============================================================================
// PLAYER DISCONNECTED (player_disconnected broadcast)
// ============================================================================
// tygo:generate
type PlayerDisconnectedNotification struct{}

// ============================================================================
// HTTP
// ============================================================================
// tygo:generate
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Store       string `json:"store"`
}

// tygo:generate
type MatchesResponse struct {
	Matches []storage.MatchRecord `json:"matches"`
}
