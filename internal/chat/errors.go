package chat

import "errors"

// Errors returned by the chat core. The router maps them to ERROR lines; the
// HTTP layer maps them to status codes.
var (
	ErrPasswordMismatch = errors.New("password mismatch")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotInRoom        = errors.New("not in a room")
	ErrAlreadyInRoom    = errors.New("already in a room")
	ErrConnClosed       = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("send buffer full")

	errStaleTicket = errors.New("room changed during admission")
)

// RoomError ties a failure to the room it happened in.
type RoomError struct {
	Room string
	Err  error
}

func (e *RoomError) Error() string { return e.Err.Error() + ": " + e.Room }
func (e *RoomError) Unwrap() error { return e.Err }
