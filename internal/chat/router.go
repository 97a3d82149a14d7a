package chat

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/min9-wan9/Chat/internal/metrics"
	"github.com/min9-wan9/Chat/internal/protocol"

	"github.com/rs/zerolog/log"
)

// Phase is where a connection stands in the join state machine.
type Phase int

const (
	Unjoined Phase = iota
	InRoom
)

func (p Phase) String() string {
	if p == InRoom {
		return "in-room"
	}
	return "unjoined"
}

// State is the membership state of one connection. Room is set only InRoom.
type State struct {
	Phase Phase
	Room  string
}

// Router turns decoded frames into registry and directory changes and the
// broadcasts that follow from them.
type Router struct {
	reg *Registry
	dir *Directory
	bc  *Broadcaster

	// listMu orders room list broadcasts so the last one sent reflects the
	// latest directory state.
	listMu sync.Mutex

	now func() time.Time
}

func NewRouter(reg *Registry, dir *Directory) *Router {
	return &Router{reg: reg, dir: dir, bc: NewBroadcaster(reg, dir), now: time.Now}
}

// Connect registers a freshly accepted connection.
func (r *Router) Connect(conn Conn) error {
	if !r.reg.Register(conn) {
		return fmt.Errorf("connection %s already registered", conn.ID())
	}
	metrics.WsConnections.Inc()
	log.Debug().Str("conn", conn.ID()).Str("addr", conn.RemoteAddr()).Msg("connected")
	return nil
}

// Disconnect runs the cleanup for a closed connection: leave its room, drop it
// from the user index and the registry. Calling it again is a no-op.
func (r *Router) Disconnect(id string) {
	r.leave(id)
	if _, ok := r.reg.Unregister(id); ok {
		metrics.WsConnections.Dec()
		log.Debug().Str("conn", id).Msg("disconnected")
	}
}

// State reports whether id is in a room.
func (r *Router) State(id string) State {
	if room, ok := r.dir.RoomOf(id); ok {
		return State{Phase: InRoom, Room: room}
	}
	return State{Phase: Unjoined}
}

// Handle processes one inbound frame from conn. Errors are answered on the
// connection itself; nothing here closes it.
func (r *Router) Handle(conn Conn, frame string) {
	if _, ok := r.reg.Conn(conn.ID()); !ok {
		return
	}
	cmd, err := protocol.Decode(frame)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("invalid", "malformed").Inc()
		log.Debug().Err(err).Str("conn", conn.ID()).Msg("rejected frame")
		r.bc.ToConn(conn, protocol.Error(err.Error()))
		return
	}

	switch c := cmd.(type) {
	case protocol.Join:
		err = r.join(conn, c)
	case protocol.Msg:
		err = r.post(conn, func(user string, at time.Time) string { return protocol.Message(user, c.Text, at) })
	case protocol.ShareFile:
		err = r.post(conn, func(user string, at time.Time) string { return protocol.File(user, c.File, at) })
	case protocol.Typing:
		err = r.typing(conn)
	case protocol.Private:
		err = r.private(conn, c.Target,
			func(from string, at time.Time) string { return protocol.PrivateTo(from, c.Text, at) },
			func(at time.Time) string { return protocol.PrivateSent(c.Target, c.Text, at) })
	case protocol.PrivateFile:
		err = r.private(conn, c.Target,
			func(from string, at time.Time) string { return protocol.PrivateFileTo(from, c.File, at) },
			func(at time.Time) string { return protocol.PrivateFileSent(c.Target, c.File, at) })
	case protocol.GetRooms:
		r.bc.ToConn(conn, r.roomsLine())
	case protocol.DeleteRoom:
		err = r.DeleteRoom(c.Room, r.actorName(conn.ID()))
	}

	verb := string(cmd.Verb())
	if err != nil {
		metrics.FramesTotal.WithLabelValues(verb, "error").Inc()
		log.Debug().Err(err).Str("conn", conn.ID()).Str("verb", verb).Msg("command failed")
		r.bc.ToConn(conn, protocol.Error(errorText(err)))
		return
	}
	metrics.FramesTotal.WithLabelValues(verb, "ok").Inc()
}

func (r *Router) join(conn Conn, j protocol.Join) error {
	id := conn.ID()
	r.leave(id)

	avatar := j.Avatar
	if strings.TrimSpace(avatar) == "" {
		avatar = Initials(j.User)
	}
	attrs := Attributes{User: j.User, Avatar: avatar, Addr: ResolveAddr(conn.RemoteAddr()), DisplayID: DisplayID(id)}

	for {
		t, err := r.dir.Admit(j.Room, j.Password)
		if err != nil {
			if errors.Is(err, ErrPasswordMismatch) {
				return &RoomError{Room: j.Room, Err: err}
			}
			return err
		}
		var (
			entered  bool
			enterErr error
		)
		r.dir.Do(j.Room, func() {
			res, err := r.dir.Enter(t, id)
			if errors.Is(err, errStaleTicket) {
				return
			}
			if err != nil {
				enterErr = err
				return
			}
			entered = true
			r.reg.SetAttributes(id, attrs)
			r.reg.BindUser(j.User, id)
			r.bc.ToRoom(j.Room, protocol.Joined(j.User), "")
			r.bc.ToRoom(j.Room, r.usersLine(j.Room), "")
			r.broadcastRooms()
			for _, line := range res.History {
				r.bc.ToConn(conn, protocol.History(line))
			}
			log.Info().Str("conn", id).Str("room", j.Room).Str("user", j.User).Bool("created", res.Created).Msg("joined")
		})
		if enterErr != nil {
			return enterErr
		}
		if entered {
			return nil
		}
	}
}

// post appends a rendered line to the sender's room history and delivers it to
// the whole room, sender included.
func (r *Router) post(conn Conn, render func(user string, at time.Time) string) error {
	return r.inRoom(conn.ID(), func(room string, attrs Attributes) {
		line := render(attrs.User, r.now())
		r.dir.Append(room, line)
		r.bc.ToRoom(room, line, "")
		metrics.WsMessagesTotal.Inc()
	})
}

func (r *Router) typing(conn Conn) error {
	return r.inRoom(conn.ID(), func(room string, attrs Attributes) {
		r.bc.ToRoom(room, protocol.TypingBy(attrs.User), conn.ID())
	})
}

// inRoom runs fn inside the event lock of the sender's room. The membership is
// checked again under the lock because a DELETE_ROOM may evict the sender
// between the lookup and the lock.
func (r *Router) inRoom(id string, fn func(room string, attrs Attributes)) error {
	st := r.State(id)
	if st.Phase != InRoom {
		return ErrNotInRoom
	}
	err := ErrNotInRoom
	r.dir.Do(st.Room, func() {
		if cur, ok := r.dir.RoomOf(id); !ok || cur != st.Room {
			return
		}
		attrs, ok := r.reg.Get(id)
		if !ok {
			return
		}
		err = nil
		fn(st.Room, attrs)
	})
	return err
}

// private routes a line to the connection using target. An offline target is
// dropped silently; the sender only gets a confirmation when the line was
// queued for the target.
func (r *Router) private(conn Conn, target string, toTarget func(from string, at time.Time) string, toSender func(at time.Time) string) error {
	attrs, _ := r.reg.Get(conn.ID())
	if attrs.User == "" {
		return ErrNotInRoom
	}
	dst, ok := r.reg.LookupUser(target)
	if !ok {
		metrics.PrivateMessagesTotal.WithLabelValues("offline").Inc()
		return nil
	}
	at := r.now()
	if !r.bc.ToConn(dst, toTarget(attrs.User, at)) {
		metrics.PrivateMessagesTotal.WithLabelValues("failed").Inc()
		return nil
	}
	metrics.PrivateMessagesTotal.WithLabelValues("delivered").Inc()
	r.bc.ToConn(conn, toSender(at))
	return nil
}

// DeleteRoom evicts every member of name, forgets its password and history and
// rebroadcasts the room list. Members get a SYS notice, then ROOM_DELETED.
func (r *Router) DeleteRoom(name, actor string) error {
	var (
		evicted []Conn
		err     error
	)
	r.dir.Do(name, func() {
		if !r.dir.Exists(name) {
			err = &RoomError{Room: name, Err: ErrRoomNotFound}
			return
		}
		r.bc.ToRoom(name, protocol.Deleted(name, actor), "")
		members := r.dir.Members(name)
		prior := make(map[string]Attributes, len(members))
		for _, id := range members {
			prior[id], _ = r.reg.Get(id)
		}
		ids, derr := r.dir.DeleteRoom(name, actor)
		if derr != nil {
			err = derr
			return
		}
		for _, id := range ids {
			if conn, ok := r.reg.Conn(id); ok {
				r.bc.ToConn(conn, protocol.RoomDeleted(name))
				evicted = append(evicted, conn)
			}
			a := prior[id]
			if a.User != "" {
				r.reg.UnbindUser(a.User, id)
			}
			r.reg.ClearAttributes(id, a.Version)
		}
	})
	if err != nil {
		return err
	}
	r.broadcastRooms(evicted...)
	return nil
}

// Rooms returns the current room list.
func (r *Router) Rooms() []protocol.RoomSummary {
	infos := r.dir.ListRooms()
	out := make([]protocol.RoomSummary, 0, len(infos))
	for _, ri := range infos {
		out = append(out, protocol.RoomSummary{Name: ri.Name, Count: ri.Count, HasPassword: ri.HasPassword})
	}
	return out
}

// Close closes every registered connection. Their transports call Disconnect.
func (r *Router) Close() {
	for _, conn := range r.reg.Conns() {
		_ = conn.Close()
	}
}

// leave takes id out of its current room and announces it. It reports false
// when id was not in a room, which makes repeated cleanups silent.
func (r *Router) leave(id string) bool {
	room, ok := r.dir.RoomOf(id)
	if !ok {
		return false
	}
	changed := false
	r.dir.Do(room, func() {
		if !r.dir.Leave(room, id).Left {
			return
		}
		changed = true
		attrs, _ := r.reg.Get(id)
		if attrs.User != "" {
			r.bc.ToRoom(room, protocol.Left(attrs.User), id)
			r.reg.UnbindUser(attrs.User, id)
		}
		r.bc.ToRoom(room, r.usersLine(room), id)
		r.reg.ClearAttributes(id, attrs.Version)
		log.Info().Str("conn", id).Str("room", room).Str("user", attrs.User).Msg("left")
	})
	if changed {
		r.broadcastRooms()
	}
	return changed
}

// broadcastRooms sends the room list to every known user and to extra.
func (r *Router) broadcastRooms(extra ...Conn) {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	line := r.roomsLine()
	r.bc.ToAllUsers(line)
	for _, conn := range extra {
		r.bc.ToConn(conn, line)
	}
}

func (r *Router) roomsLine() string { return protocol.Rooms(r.Rooms()) }

func (r *Router) usersLine(room string) string {
	ids := r.dir.Members(room)
	members := make([]protocol.Member, 0, len(ids))
	for _, id := range ids {
		a, ok := r.reg.Get(id)
		if !ok {
			continue
		}
		members = append(members, protocol.Member{Username: a.User, Avatar: a.Avatar, IP: a.Addr, UniqueID: a.DisplayID})
	}
	return protocol.Users(members)
}

func (r *Router) actorName(id string) string {
	if a, ok := r.reg.Get(id); ok && a.User != "" {
		return a.User
	}
	return DisplayID(id)
}

func errorText(err error) string {
	var re *RoomError
	switch {
	case errors.As(err, &re) && errors.Is(re.Err, ErrPasswordMismatch):
		return "Wrong password for room " + re.Room
	case errors.As(err, &re) && errors.Is(re.Err, ErrRoomNotFound):
		return "Room " + re.Room + " does not exist"
	case errors.Is(err, ErrNotInRoom):
		return "Join a room first"
	}
	return "internal error"
}

// Initials builds the default avatar: first letters of the first two words, or
// the first two letters of a single word, upper-cased.
func Initials(user string) string {
	words := strings.FieldsFunc(user, func(r rune) bool { return unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' })
	switch len(words) {
	case 0:
		return "?"
	case 1:
		rs := []rune(words[0])
		if len(rs) > 2 {
			rs = rs[:2]
		}
		return strings.ToUpper(string(rs))
	}
	return strings.ToUpper(string([]rune(words[0])[:1]) + string([]rune(words[1])[:1]))
}

// ResolveAddr reduces a remote address to its host, or "Unknown".
func ResolveAddr(addr string) string {
	if addr == "" {
		return "Unknown"
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		return "Unknown"
	}
	return host
}
