package service

import (
	"errors"
	"strings"

	"github.com/min9-wan9/Chat/internal/chat"
	"github.com/min9-wan9/Chat/internal/protocol"
)

// RoomService 为 REST 接口封装房间查询与管理员删除。
type RoomService struct {
	router *chat.Router
}

func NewRoomService(router *chat.Router) *RoomService {
	return &RoomService{router: router}
}

// List returns every room with its member count, sorted by name.
func (s *RoomService) List() []protocol.RoomSummary {
	return s.router.Rooms()
}

// Delete evicts every member of name exactly like a DELETE_ROOM frame would.
func (s *RoomService) Delete(name, actor string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidRoom
	}
	err := s.router.DeleteRoom(name, actor)
	if errors.Is(err, chat.ErrRoomNotFound) {
		return ErrRoomNotFound
	}
	return err
}
