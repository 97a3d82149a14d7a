package service

import (
	"testing"

	"github.com/min9-wan9/Chat/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{ id string }

func (c nopConn) ID() string         { return c.id }
func (c nopConn) RemoteAddr() string { return "127.0.0.1:1" }
func (c nopConn) Send(string) error  { return nil }
func (c nopConn) Close() error       { return nil }

func TestRoomService_ListAndDelete(t *testing.T) {
	reg := chat.NewRegistry()
	dir := chat.NewDirectory(chat.DirectoryOptions{})
	router := chat.NewRouter(reg, dir)
	svc := NewRoomService(router)

	c := nopConn{id: "c1"}
	require.NoError(t, router.Connect(c))
	router.Handle(c, "JOIN|lobby|alice")

	rooms := svc.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, "lobby", rooms[0].Name)
	assert.Equal(t, 1, rooms[0].Count)

	require.NoError(t, svc.Delete("lobby", "ops"))
	assert.Empty(t, svc.List())
	assert.Equal(t, chat.Unjoined, router.State("c1").Phase)

	assert.ErrorIs(t, svc.Delete("lobby", "ops"), ErrRoomNotFound)
	assert.ErrorIs(t, svc.Delete("  ", "ops"), ErrInvalidRoom)
}
