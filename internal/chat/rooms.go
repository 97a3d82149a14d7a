package chat

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/min9-wan9/Chat/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Retention decides what happens to a room once its last member leaves.
type Retention int

const (
	// KeepRooms keeps empty rooms, with password and history, until deleted.
	KeepRooms Retention = iota
	// DeleteEmptyRooms drops a room and its history when it becomes empty.
	DeleteEmptyRooms
)

// ParseRetention accepts "keep" and "delete-empty".
func ParseRetention(s string) (Retention, error) {
	switch s {
	case "", "keep":
		return KeepRooms, nil
	case "delete-empty":
		return DeleteEmptyRooms, nil
	}
	return KeepRooms, fmt.Errorf("unknown room retention %q", s)
}

func (r Retention) String() string {
	if r == DeleteEmptyRooms {
		return "delete-empty"
	}
	return "keep"
}

// Secrets seals room passwords at creation and checks them on later joins.
// An empty password must seal to nil and nil must match only "".
type Secrets interface {
	Seal(password string) ([]byte, error)
	Match(sealed []byte, password string) bool
}

// RoomInfo is one row of the room list.
type RoomInfo struct {
	Name        string
	Count       int
	HasPassword bool
}

// JoinResult reports a successful join. History is the replay log captured in
// the same critical section that added the member.
type JoinResult struct {
	Created bool
	History []string
}

// LeaveResult reports what Leave changed.
type LeaveResult struct {
	Left    bool
	Deleted bool
}

// Ticket is the outcome of a password check, valid for one room incarnation.
type Ticket struct {
	name   string
	room   *room
	secret []byte
}

type room struct {
	name    string
	secret  []byte
	members []string // join order
	history *History
}

const feedStripes = 64

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	Retention    Retention
	HistoryLimit int
	Secrets      Secrets
}

// Directory owns rooms, their membership and history, and the connection to
// room mapping. Membership and the mapping change together under one lock, so
// they always agree.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*room
	where map[string]string // connection id -> room name

	// feeds serialise the events of a room; see Do.
	feeds [feedStripes]sync.Mutex

	retention    Retention
	historyLimit int
	secrets      Secrets
}

func NewDirectory(opts DirectoryOptions) *Directory {
	return &Directory{
		rooms:        make(map[string]*room),
		where:        make(map[string]string),
		retention:    opts.Retention,
		historyLimit: opts.HistoryLimit,
		secrets:      opts.Secrets,
	}
}

// Do runs fn holding the event lock of name. Membership changes, history
// appends and the deliveries they trigger must happen inside Do so every
// member observes one order and a joiner gets its replay before later events.
// fn must not call Do again.
func (d *Directory) Do(name string, fn func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	mu := &d.feeds[h.Sum32()%feedStripes]
	mu.Lock()
	defer mu.Unlock()
	fn()
}

// Admit checks password against room name without holding any lock across
// the (slow) hash comparison. For a room that does not exist yet the password
// is sealed so Enter can create it.
func (d *Directory) Admit(name, password string) (Ticket, error) {
	d.mu.RLock()
	r := d.rooms[name]
	d.mu.RUnlock()

	if r != nil {
		if !d.match(r.secret, password) {
			return Ticket{}, ErrPasswordMismatch
		}
		return Ticket{name: name, room: r}, nil
	}
	sealed, err := d.seal(password)
	if err != nil {
		return Ticket{}, fmt.Errorf("seal room password: %w", err)
	}
	return Ticket{name: name, secret: sealed}, nil
}

// Enter adds id to the room the ticket was issued for. It fails with
// errStaleTicket when the room was created or deleted since Admit.
func (d *Directory) Enter(t Ticket, id string) (JoinResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rooms[t.name] != t.room {
		return JoinResult{}, errStaleTicket
	}
	if cur, ok := d.where[id]; ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrAlreadyInRoom, cur)
	}
	r := t.room
	created := false
	if r == nil {
		r = &room{name: t.name, secret: t.secret, history: NewHistory(d.historyLimit)}
		d.rooms[t.name] = r
		created = true
		metrics.Rooms.Set(float64(len(d.rooms)))
	}
	r.members = append(r.members, id)
	d.where[id] = t.name
	return JoinResult{Created: created, History: r.history.Snapshot()}, nil
}

// Join admits and enters in one call, retrying when the room changes in
// between. It creates the room with password when it does not exist; on a
// mismatch it returns ErrPasswordMismatch and changes nothing.
func (d *Directory) Join(name, id, password string) (JoinResult, error) {
	for {
		t, err := d.Admit(name, password)
		if err != nil {
			return JoinResult{}, err
		}
		res, err := d.Enter(t, id)
		if err == errStaleTicket {
			continue
		}
		return res, err
	}
}

// Leave removes id from name. With DeleteEmptyRooms the room and its history
// are dropped once the last member is gone.
func (d *Directory) Leave(name, id string) LeaveResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.where[id] != name {
		return LeaveResult{}
	}
	delete(d.where, id)
	r := d.rooms[name]
	if r == nil {
		return LeaveResult{Left: true}
	}
	for i, m := range r.members {
		if m == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 && d.retention == DeleteEmptyRooms {
		delete(d.rooms, name)
		metrics.Rooms.Set(float64(len(d.rooms)))
		return LeaveResult{Left: true, Deleted: true}
	}
	return LeaveResult{Left: true}
}

// DeleteRoom evicts every member of name and forgets its password and history.
// It returns the evicted connection ids.
func (d *Directory) DeleteRoom(name, actor string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[name]
	if !ok {
		return nil, &RoomError{Room: name, Err: ErrRoomNotFound}
	}
	evicted := append([]string(nil), r.members...)
	for _, id := range evicted {
		delete(d.where, id)
	}
	delete(d.rooms, name)
	metrics.Rooms.Set(float64(len(d.rooms)))
	log.Info().Str("room", name).Str("actor", actor).Int("evicted", len(evicted)).Msg("room deleted")
	return evicted, nil
}

// ListRooms returns every room sorted by name.
func (d *Directory) ListRooms() []RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RoomInfo, 0, len(d.rooms))
	for name, r := range d.rooms {
		out = append(out, RoomInfo{Name: name, Count: len(r.members), HasPassword: r.secret != nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoomOf returns the room id is currently in.
func (d *Directory) RoomOf(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.where[id]
	return name, ok
}

func (d *Directory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[name]
	return ok
}

// Members returns a snapshot of the member ids of name in join order.
func (d *Directory) Members(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[name]
	if !ok {
		return nil
	}
	return append([]string(nil), r.members...)
}

// Append adds a rendered line to the history of name. It reports false when
// the room does not exist.
func (d *Directory) Append(name, line string) bool {
	d.mu.RLock()
	r, ok := d.rooms[name]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	r.history.Append(line)
	return true
}

// History returns the stored lines of name, oldest first.
func (d *Directory) History(name string) []string {
	d.mu.RLock()
	r, ok := d.rooms[name]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.history.Snapshot()
}

func (d *Directory) seal(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	if d.secrets == nil {
		return []byte(password), nil
	}
	return d.secrets.Seal(password)
}

func (d *Directory) match(sealed []byte, password string) bool {
	if sealed == nil {
		return true
	}
	if d.secrets == nil {
		return string(sealed) == password
	}
	return d.secrets.Match(sealed, password)
}
