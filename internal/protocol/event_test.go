package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLines(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	f := FileMeta{URL: "/api/files/a.png", Type: "image", Name: "a.png", Size: "10"}

	tests := []struct {
		got  string
		want string
	}{
		{Joined("alice"), "SYS|alice joined room"},
		{Left("alice"), "SYS|alice left room"},
		{Deleted("lobby", "bob"), "SYS|Room lobby was deleted by bob"},
		{Error("nope"), "ERROR|nope"},
		{RoomDeleted("lobby"), "ROOM_DELETED|lobby"},
		{TypingBy("alice"), "TYPING|alice"},
		{Message("alice", "hi", at), "MSG|alice|hi|1700000000123"},
		{History(Message("alice", "hi", at)), "HISTORY|MSG|alice|hi|1700000000123"},
		{PrivateTo("alice", "psst", at), "PRIVATE|alice|psst|1700000000123"},
		{PrivateSent("bob", "psst", at), "PRIVATE_SENT|bob|psst|1700000000123"},
		{File("alice", f, at), "FILE|alice|/api/files/a.png|image|a.png|10|1700000000123"},
		{PrivateFileTo("alice", f, at), "PRIVATE_FILE|alice|/api/files/a.png|image|a.png|10|1700000000123"},
		{PrivateFileSent("bob", f, at), "PRIVATE_FILE_SENT|bob|/api/files/a.png|image|a.png|10|1700000000123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestUsersPayload(t *testing.T) {
	out := Users([]Member{{Username: "alice", Avatar: "AL", IP: "127.0.0.1", UniqueID: "ABC123"}})
	verb, payload, ok := strings.Cut(out, Separator)
	require.True(t, ok)
	assert.Equal(t, VerbUsers, verb)

	var got []map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, []map[string]string{{"username": "alice", "avatar": "AL", "ip": "127.0.0.1", "uniqueId": "ABC123"}}, got)

	assert.Equal(t, "USERS|[]", Users(nil))
}

func TestRoomsPayload(t *testing.T) {
	out := Rooms([]RoomSummary{{Name: "lobby", Count: 2, HasPassword: true}})
	assert.Equal(t, `ROOMS|[{"name":"lobby","count":2,"hasPassword":true}]`, out)
	assert.Equal(t, "ROOMS|[]", Rooms(nil))
}
