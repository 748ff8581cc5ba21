package server

import (
	"errors"
	"strings"
)

var (
	ErrRoomFull       = errors.New("ROOM_FULL: Room already has two players")
	ErrInvalidJoin    = errors.New("INVALID_JOIN: Name and room are required")
	ErrAlreadyJoined  = errors.New("ALREADY_JOINED: Connection already joined a room")
	ErrRateLimited    = errors.New("RATE_LIMIT_EXCEEDED: Too many messages, slow down")
	ErrUnknownMessage = errors.New("INVALID_MESSAGE_TYPE: Unknown message type")
	ErrInvalidPayload = errors.New("INVALID_PAYLOAD: Malformed message payload")
)

// errorCode splits a "CODE: message" error into its code and message parts.
// Errors without an upper-case code prefix get an empty code.
func errorCode(err error) (code, message string) {
	msg := err.Error()
	head, rest, ok := strings.Cut(msg, ": ")
	if !ok || head == "" || strings.ToUpper(head) != head || strings.ContainsAny(head, " ") {
		return "", msg
	}
	return head, rest
}
