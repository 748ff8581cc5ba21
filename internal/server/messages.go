package server

import "encoding/json"

// Inbound message types.
const (
	TypeJoinRoom   = "join_room"
	TypeMovePaddle = "move_paddle"
	TypePing       = "ping"
)

// Outbound message types.
const (
	TypeAssignedPlayer     = "assigned_player"
	TypeRoomFull           = "room_full"
	TypeStartGame          = "start_game"
	TypeUpdateState        = "update_state"
	TypePlayerDisconnected = "player_disconnected"
	TypePong               = "pong"
	TypeError              = "error"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
