package chat

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetention(t *testing.T) {
	tests := []struct {
		in      string
		want    Retention
		wantErr bool
	}{
		{"", KeepRooms, false},
		{"keep", KeepRooms, false},
		{"delete-empty", DeleteEmptyRooms, false},
		{"forever", KeepRooms, true},
	}
	for _, tt := range tests {
		got, err := ParseRetention(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRetention(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRetention(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDirectory_JoinCreatesWithPassword(t *testing.T) {
	d := NewDirectory(DirectoryOptions{Secrets: testSecrets()})

	res, err := d.Join("lobby", "a", "abc")
	require.NoError(t, err)
	assert.True(t, res.Created)

	_, err = d.Join("lobby", "b", "xyz")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	_, inRoom := d.RoomOf("b")
	assert.False(t, inRoom)
	assert.Equal(t, []string{"a"}, d.Members("lobby"))

	res, err = d.Join("lobby", "b", "abc")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []string{"a", "b"}, d.Members("lobby"))
	assert.Equal(t, []RoomInfo{{Name: "lobby", Count: 2, HasPassword: true}}, d.ListRooms())
}

func TestDirectory_OpenRoomAcceptsAnyPassword(t *testing.T) {
	d := NewDirectory(DirectoryOptions{Secrets: testSecrets()})
	_, err := d.Join("open", "a", "")
	require.NoError(t, err)
	_, err = d.Join("open", "b", "whatever")
	require.NoError(t, err)
	assert.False(t, d.ListRooms()[0].HasPassword)
}

func TestDirectory_JoinTwiceFails(t *testing.T) {
	d := NewDirectory(DirectoryOptions{})
	_, err := d.Join("r1", "a", "")
	require.NoError(t, err)
	_, err = d.Join("r2", "a", "")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.False(t, d.Exists("r2"))
}

func TestDirectory_Retention(t *testing.T) {
	keep := NewDirectory(DirectoryOptions{Retention: KeepRooms})
	_, _ = keep.Join("r", "a", "pw")
	keep.Append("r", "MSG|a|hi|1")
	res := keep.Leave("r", "a")
	assert.Equal(t, LeaveResult{Left: true}, res)
	assert.True(t, keep.Exists("r"))
	assert.Equal(t, []string{"MSG|a|hi|1"}, keep.History("r"))
	_, err := keep.Join("r", "b", "other")
	assert.ErrorIs(t, err, ErrPasswordMismatch, "kept room keeps its password")

	drop := NewDirectory(DirectoryOptions{Retention: DeleteEmptyRooms})
	_, _ = drop.Join("r", "a", "pw")
	_, _ = drop.Join("r", "b", "pw")
	assert.Equal(t, LeaveResult{Left: true}, drop.Leave("r", "a"))
	assert.Equal(t, LeaveResult{Left: true, Deleted: true}, drop.Leave("r", "b"))
	assert.False(t, drop.Exists("r"))
	assert.Empty(t, drop.ListRooms())
}

func TestDirectory_LeaveNotMember(t *testing.T) {
	d := NewDirectory(DirectoryOptions{})
	_, _ = d.Join("r", "a", "")
	assert.Equal(t, LeaveResult{}, d.Leave("r", "b"))
	assert.Equal(t, LeaveResult{}, d.Leave("other", "a"))
	assert.Equal(t, []string{"a"}, d.Members("r"))
}

func TestDirectory_DeleteRoom(t *testing.T) {
	d := NewDirectory(DirectoryOptions{Secrets: testSecrets()})
	_, _ = d.Join("r", "a", "pw")
	_, _ = d.Join("r", "b", "pw")
	d.Append("r", "MSG|a|hi|1")

	evicted, err := d.DeleteRoom("r", "admin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, evicted)
	for _, id := range evicted {
		_, ok := d.RoomOf(id)
		assert.False(t, ok)
	}
	assert.False(t, d.Exists("r"))

	// The name is free again: new password, empty history.
	res, err := d.Join("r", "c", "new")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.History)

	_, err = d.DeleteRoom("missing", "admin")
	assert.True(t, errors.Is(err, ErrRoomNotFound))
	var re *RoomError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "missing", re.Room)
}

func TestDirectory_ListRoomsSorted(t *testing.T) {
	d := NewDirectory(DirectoryOptions{})
	for i, name := range []string{"zeta", "alpha", "mid"} {
		_, _ = d.Join(name, fmt.Sprint(i), "")
	}
	var names []string
	for _, ri := range d.ListRooms() {
		names = append(names, ri.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestDirectory_HistoryLimit(t *testing.T) {
	d := NewDirectory(DirectoryOptions{HistoryLimit: 2})
	_, _ = d.Join("r", "a", "")
	for i := 0; i < 5; i++ {
		d.Append("r", fmt.Sprint(i))
	}
	assert.Equal(t, []string{"3", "4"}, d.History("r"))
	assert.False(t, d.Append("missing", "x"))
}

// A ticket issued before the room was deleted and recreated must not let the
// holder in under the old password.
func TestDirectory_StaleTicket(t *testing.T) {
	d := NewDirectory(DirectoryOptions{Secrets: testSecrets()})
	_, _ = d.Join("r", "a", "old")
	ticket, err := d.Admit("r", "old")
	require.NoError(t, err)

	_, _ = d.DeleteRoom("r", "admin")
	_, _ = d.Join("r", "c", "new")

	_, err = d.Enter(ticket, "b")
	assert.ErrorIs(t, err, errStaleTicket)
	_, err = d.Join("r", "b", "old")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

// Concurrent first joins with different passwords create the room once; every
// later join is judged against that single password.
func TestDirectory_ConcurrentCreate(t *testing.T) {
	d := NewDirectory(DirectoryOptions{Secrets: testSecrets()})
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Join("r", fmt.Sprint(i), fmt.Sprint("pw", i%2))
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
		} else {
			assert.ErrorIs(t, err, ErrPasswordMismatch)
		}
	}
	assert.Equal(t, joined, len(d.Members("r")))
	assert.Equal(t, 4, joined)
}
