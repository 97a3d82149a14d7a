package chat

import (
	"strings"
	"sync"
)

// Conn is one live client channel. Send must not block: implementations queue
// the line or fail with ErrSlowConsumer / ErrConnClosed.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(line string) error
	Close() error
}

// Attributes are the per-connection values recorded on JOIN. The zero value
// means the connection has no identity. Version is maintained by the Registry.
type Attributes struct {
	User      string
	Avatar    string
	Addr      string
	DisplayID string
	Version   uint64
}

type entry struct {
	conn  Conn
	attrs Attributes
}

// Registry tracks live connections, their attributes and the user name index
// used for private messages.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*entry
	users   map[string]string // user name -> connection id, last join wins
	version uint64
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		users: make(map[string]string),
	}
}

// Register adds conn. It reports false if the id is already registered.
func (r *Registry) Register(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		return false
	}
	r.conns[conn.ID()] = &entry{conn: conn}
	return true
}

// Unregister removes the connection and returns its last attributes. The user
// index entry is dropped only if it still points at this connection.
func (r *Registry) Unregister(id string) (Attributes, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return Attributes{}, false
	}
	delete(r.conns, id)
	if e.attrs.User != "" && r.users[e.attrs.User] == id {
		delete(r.users, e.attrs.User)
	}
	return e.attrs, true
}

// SetAttributes replaces the attributes of id and stamps a new Version.
func (r *Registry) SetAttributes(id string, a Attributes) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	r.version++
	a.Version = r.version
	e.attrs = a
	return true
}

// ClearAttributes resets the attributes of id, but only when they are still
// the ones stamped with version. A newer JOIN is never wiped by a stale cleanup.
func (r *Registry) ClearAttributes(id string, version uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.attrs.Version != version {
		return false
	}
	e.attrs = Attributes{}
	return true
}

func (r *Registry) Get(id string) (Attributes, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return Attributes{}, false
	}
	return e.attrs, true
}

func (r *Registry) Conn(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// BindUser points user at id, replacing any previous owner of the name.
func (r *Registry) BindUser(user, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user] = id
}

// UnbindUser removes user from the index only if it still points at id.
func (r *Registry) UnbindUser(user, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[user] != id {
		return false
	}
	delete(r.users, user)
	return true
}

// LookupUser returns the connection currently using the name.
func (r *Registry) LookupUser(user string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[user]
	if !ok {
		return nil, false
	}
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// KnownUsers returns every connection present in the user index.
func (r *Registry) KnownUsers() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.users))
	seen := make(map[string]struct{}, len(r.users))
	for _, id := range r.users {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := r.conns[id]; ok {
			out = append(out, e.conn)
		}
	}
	return out
}

// Conns returns every registered connection.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// DisplayID derives the short id shown to other users: the last six characters
// of the connection id, upper-cased.
func DisplayID(id string) string {
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return strings.ToUpper(id)
}
