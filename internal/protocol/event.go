package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Server to client verbs that are not echoes of inbound commands.
const (
	VerbSys         = "SYS"
	VerbUsers       = "USERS"
	VerbRooms       = "ROOMS"
	VerbHistory     = "HISTORY"
	VerbError       = "ERROR"
	VerbRoomDeleted = "ROOM_DELETED"
	VerbPrivateSent = "PRIVATE_SENT"
	VerbPrivFileOut = "PRIVATE_FILE_SENT"
)

// Member is one entry of a USERS payload.
type Member struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IP       string `json:"ip"`
	UniqueID string `json:"uniqueId"`
}

// RoomSummary is one entry of a ROOMS payload.
type RoomSummary struct {
	Name        string `json:"name"`
	Count       int    `json:"count"`
	HasPassword bool   `json:"hasPassword"`
}

func line(verb string, fields ...string) string {
	var b strings.Builder
	b.WriteString(verb)
	for _, f := range fields {
		b.WriteString(Separator)
		b.WriteString(f)
	}
	return b.String()
}

func stamp(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func Sys(text string) string            { return line(VerbSys, text) }
func Error(text string) string          { return line(VerbError, text) }
func RoomDeleted(room string) string    { return line(VerbRoomDeleted, room) }
func TypingBy(user string) string       { return line(string(VerbTyping), user) }
func History(original string) string    { return line(VerbHistory, original) }
func Joined(user string) string         { return Sys(user + " joined room") }
func Left(user string) string           { return Sys(user + " left room") }
func Deleted(room, actor string) string { return Sys("Room " + room + " was deleted by " + actor) }

// Message renders a room text message.
func Message(user, text string, at time.Time) string {
	return line(string(VerbMsg), user, text, stamp(at))
}

// PrivateTo is what the recipient of a private message receives.
func PrivateTo(from, text string, at time.Time) string {
	return line(string(VerbPrivate), from, text, stamp(at))
}

// PrivateSent confirms delivery of a private message to its sender.
func PrivateSent(to, text string, at time.Time) string {
	return line(VerbPrivateSent, to, text, stamp(at))
}

// File renders a file shared with a room.
func File(user string, f FileMeta, at time.Time) string {
	return line(string(VerbFile), user, f.URL, f.Type, f.Name, f.Size, stamp(at))
}

// PrivateFileTo is what the recipient of a private file receives.
func PrivateFileTo(from string, f FileMeta, at time.Time) string {
	return line(string(VerbPrivateFile), from, f.URL, f.Type, f.Name, f.Size, stamp(at))
}

// PrivateFileSent confirms delivery of a private file to its sender.
func PrivateFileSent(to string, f FileMeta, at time.Time) string {
	return line(VerbPrivFileOut, to, f.URL, f.Type, f.Name, f.Size, stamp(at))
}

// Users renders a member list.
func Users(members []Member) string {
	if members == nil {
		members = []Member{}
	}
	b, _ := json.Marshal(members)
	return line(VerbUsers, string(b))
}

// Rooms renders a room list.
func Rooms(rooms []RoomSummary) string {
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	b, _ := json.Marshal(rooms)
	return line(VerbRooms, string(b))
}
