package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"pong-server/internal/storage"
)

const maxMatchesLimit = 100

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))

	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/matches", s.matchesHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:      "ok",
		Rooms:       s.registry.Len(),
		Connections: s.connectionManager.Count(),
		Store:       "ok",
	}
	status := http.StatusOK
	if err := s.recorder.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) matchesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMatchesLimit)
	}

	matches, err := s.recorder.RecentMatches(r.Context(), limit)
	if err != nil {
		s.logger.Error("list matches failed", "error", err)
		http.Error(w, "Failed to load matches", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []storage.MatchRecord{}
	}

	s.writeJSON(w, http.StatusOK, MatchesResponse{Matches: matches})
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	logger := s.logger.With("connection_id", connectionID)
	logger.Info("new connection")

	conn := s.connectionManager.AddConnection(connectionID, socket)
	go conn.writePump(ctx, logger)

	defer func() {
		s.disconnect(connectionID)
		s.connectionManager.RemoveConnection(connectionID)
		s.rateLimiter.RemoveConnection(connectionID)
		logger.Info("connection closed")
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			logger.Debug("read ended", "error", err)
			return
		}

		if msgType != websocket.MessageText {
			logger.Debug("non-text frame ignored")
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(connectionID, ErrRateLimited)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("invalid json", "error", err)
			s.sendError(connectionID, ErrInvalidPayload)
			continue
		}

		if err := ValidateMessageType(msg.Type); err != nil {
			logger.Debug("unknown message type", "type", msg.Type)
			s.sendError(connectionID, err)
			continue
		}

		// Route the message
		switch msg.Type {
		case TypePing:
			s.handlePing(connectionID)

		case TypeJoinRoom:
			s.handleJoinRoom(connectionID, msg.Payload)

		case TypeMovePaddle:
			s.handleMovePaddle(connectionID, msg.Payload)
		}
	}
}

func (s *Server) handlePing(connectionID string) {
	s.sendMessage(connectionID, ServerMessage{Type: TypePong, Payload: struct{}{}})
}

func (s *Server) handleJoinRoom(connectionID string, payload json.RawMessage) {
	if s.connectionManager.GetRoom(connectionID) != "" {
		s.sendError(connectionID, ErrAlreadyJoined)
		return
	}

	var req JoinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(connectionID, ErrInvalidPayload)
		return
	}
	if err := ValidateJoinRequest(&req); err != nil {
		s.sendError(connectionID, err)
		return
	}

	result, err := s.registry.JoinOrCreate(req.Room, connectionID, req.Name)
	switch {
	case errors.Is(err, ErrRoomFull):
		s.logger.Info("room full", "room", req.Room, "connection_id", connectionID)
		s.sendMessage(connectionID, ServerMessage{Type: TypeRoomFull, Payload: RoomFullNotification{}})
		return
	case err != nil:
		s.sendError(connectionID, err)
		return
	}

	s.connectionManager.SetRoom(connectionID, req.Room)
	s.logger.Info("player joined",
		"room", req.Room,
		"connection_id", connectionID,
		"name", req.Name,
		"slot", result.Slot)

	if result.Start {
		s.startLoop(result.Session)
	}
}

// announceJoin queues assigned_player for the joiner and, when the pair is
// complete, start_game for both. It runs under the session lock.
func (s *Server) announceJoin(result JoinResult) {
	s.sendMessage(result.ID, ServerMessage{
		Type: TypeAssignedPlayer,
		Payload: AssignedPlayerResponse{
			Number: result.Slot,
			Config: s.cfg.Game,
		},
	})

	if result.Start {
		s.broadcast(result.Participants, ServerMessage{
			Type:    TypeStartGame,
			Payload: StartGameNotification(result.Participants),
		})
	}
}

func (s *Server) handleMovePaddle(connectionID string, payload json.RawMessage) {
	var dir MovePaddleRequest
	if err := json.Unmarshal(payload, &dir); err != nil {
		s.sendError(connectionID, ErrInvalidPayload)
		return
	}

	room := s.connectionManager.GetRoom(connectionID)
	if room == "" {
		return
	}
	s.registry.ApplyInput(room, connectionID, dir)
}

// disconnect removes the connection from its room and tells whoever is left.
func (s *Server) disconnect(connectionID string) {
	room := s.connectionManager.GetRoom(connectionID)
	if room == "" {
		return
	}

	survivors := s.registry.Leave(room, connectionID)
	s.logger.Info("player left", "room", room, "connection_id", connectionID, "remaining", len(survivors))

	if len(survivors) > 0 {
		s.broadcast(survivors, ServerMessage{Type: TypePlayerDisconnected, Payload: PlayerDisconnectedNotification{}})
	}
}

func (s *Server) sendMessage(connectionID string, msg ServerMessage) {
	if err := s.connectionManager.Send(connectionID, msg); err != nil {
		s.logger.Error("send failed", "connection_id", connectionID, "type", msg.Type, "error", err)
	}
}

func (s *Server) sendError(connectionID string, err error) {
	code, message := errorCode(err)
	s.sendMessage(connectionID, ServerMessage{
		Type:    TypeError,
		Payload: ErrorMessage{Message: message, Code: code},
	})
}

func (s *Server) broadcast(participants []Participant, msg ServerMessage) {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}
	if err := s.connectionManager.Broadcast(ids, msg); err != nil {
		s.logger.Error("broadcast failed", "type", msg.Type, "error", err)
	}
}
