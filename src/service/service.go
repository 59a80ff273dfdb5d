package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orchestra-mcp/roomchat/src/protocol"
	"github.com/orchestra-mcp/roomchat/src/relay"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
)

// SystemSender is the sender name used for announcements.
const SystemSender = "system"

// RoomSummary describes one room for listings.
type RoomSummary struct {
	RoomID  int64 `json:"room_id"`
	Members int   `json:"members"`
}

// Service provides the high-level relay API used by admin routes.
type Service struct {
	hub    *relay.Hub
	logger zerolog.Logger
}

// New creates a new relay service backed by the given hub.
func New(h *relay.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *relay.Hub { return s.hub }

// Announce posts a system message to a room.
func (s *Service) Announce(roomID int64, content string) (types.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.ChatMessage{}, fmt.Errorf("announcement content is required")
	}
	frame := s.hub.Announce(roomID, SystemSender, content)
	s.logger.Info().Int64("room_id", roomID).Msg("announcement posted")
	return frame.ChatMessage, nil
}

// NotifyTyping shows a typing indicator for username to a room.
func (s *Service) NotifyTyping(roomID int64, username string) {
	s.hub.Publish(roomID, protocol.NewTypingFrame(username))
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(types.ClientInfo)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(types.ClientInfo)) {
	s.hub.OnDisconnection(cb)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}

// GetRooms returns rooms with their member counts, ordered by id.
func (s *Service) GetRooms() []RoomSummary {
	rooms := s.hub.Rooms()
	out := make([]RoomSummary, 0, len(rooms))
	for id, n := range rooms {
		out = append(out, RoomSummary{RoomID: id, Members: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// GetActiveUsers returns the sorted usernames present in a room.
func (s *Service) GetActiveUsers(roomID int64) []string {
	return s.hub.ActiveUsers(roomID)
}

// GetHistory returns recent messages of a room.
func (s *Service) GetHistory(roomID int64, limit int) []types.ChatMessage {
	return s.hub.History(roomID, limit)
}
