package chat

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/min9-wan9/Chat/internal/auth"

	"golang.org/x/crypto/bcrypt"
)

// fakeConn records every line sent to it.
type fakeConn struct {
	id   string
	addr string

	mu     sync.Mutex
	lines  []string
	closed bool
	full   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, addr: "10.0.0.1:5000"}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.full {
		return ErrSlowConsumer
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Take returns the recorded lines and forgets them.
func (c *fakeConn) Take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.lines
	c.lines = nil
	return out
}

// WithPrefix returns recorded lines starting with prefix.
func (c *fakeConn) WithPrefix(prefix string) []string {
	var out []string
	for _, l := range c.Lines() {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// testSecrets are the production room secrets at the lowest bcrypt cost.
func testSecrets() Secrets { return auth.NewRoomSecrets(bcrypt.MinCost) }

type fixture struct {
	reg    *Registry
	dir    *Directory
	router *Router
}

func newFixture(t *testing.T, opts DirectoryOptions) *fixture {
	t.Helper()
	if opts.Secrets == nil {
		opts.Secrets = testSecrets()
	}
	reg := NewRegistry()
	dir := NewDirectory(opts)
	r := NewRouter(reg, dir)
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &fixture{reg: reg, dir: dir, router: r}
}

func (f *fixture) connect(t *testing.T, id string) *fakeConn {
	t.Helper()
	c := newFakeConn(id)
	if err := f.router.Connect(c); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	return c
}
