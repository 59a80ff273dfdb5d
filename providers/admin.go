package providers

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/roomchat/src/types"
)

// AnnounceRequest is the body of POST /rooms/:id/announce.
type AnnounceRequest struct {
	Content string `json:"content"`
}

func errorJSON(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

func roomParam(c fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func (s *RelayServer) handleListClients(c fiber.Ctx) error {
	ids := s.service.GetConnectedClients()
	infos := make([]types.ClientInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.service.GetClientInfo(id)
		if err == nil {
			infos = append(infos, *info)
		}
	}
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}

func (s *RelayServer) handleListRooms(c fiber.Ctx) error {
	rooms := s.service.GetRooms()
	return c.JSON(fiber.Map{"rooms": rooms, "count": len(rooms)})
}

func (s *RelayServer) handleRoomUsers(c fiber.Ctx) error {
	roomID, err := roomParam(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_room", "room id must be an integer")
	}
	return c.JSON(fiber.Map{
		"room_id":      roomID,
		"active_users": s.service.GetActiveUsers(roomID),
	})
}

func (s *RelayServer) handleRoomHistory(c fiber.Ctx) error {
	roomID, err := roomParam(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_room", "room id must be an integer")
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return errorJSON(c, fiber.StatusBadRequest, "bad_limit", "limit must be a non-negative integer")
		}
	}
	messages := s.service.GetHistory(roomID, limit)
	if messages == nil {
		messages = []types.ChatMessage{}
	}
	return c.JSON(fiber.Map{"room_id": roomID, "messages": messages})
}

func (s *RelayServer) handleAnnounce(c fiber.Ctx) error {
	roomID, err := roomParam(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_room", "room id must be an integer")
	}
	var req AnnounceRequest
	if err := c.Bind().Body(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	msg, err := s.service.Announce(roomID, req.Content)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}
