package chat

import (
	"errors"

	"github.com/min9-wan9/Chat/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Broadcaster delivers rendered lines to sets of connections. Recipients are
// resolved from point-in-time snapshots and Conn.Send never blocks, so a slow
// recipient cannot hold up the others. A failed delivery closes that
// connection; its cleanup runs from the transport like any other disconnect.
type Broadcaster struct {
	reg *Registry
	dir *Directory
}

func NewBroadcaster(reg *Registry, dir *Directory) *Broadcaster {
	return &Broadcaster{reg: reg, dir: dir}
}

// ToRoom sends line to every member of room except exclude (may be empty).
// It returns the number of successful deliveries.
func (b *Broadcaster) ToRoom(room, line, exclude string) int {
	n := 0
	for _, id := range b.dir.Members(room) {
		if id == exclude {
			continue
		}
		conn, ok := b.reg.Conn(id)
		if !ok {
			continue
		}
		if b.deliver(conn, line) {
			n++
		}
	}
	metrics.BroadcastFanout.Observe(float64(n))
	return n
}

// ToAllUsers sends line to every connection present in the user index.
func (b *Broadcaster) ToAllUsers(line string) int {
	n := 0
	for _, conn := range b.reg.KnownUsers() {
		if b.deliver(conn, line) {
			n++
		}
	}
	metrics.BroadcastFanout.Observe(float64(n))
	return n
}

// ToConn sends line to a single connection and reports whether it was queued.
func (b *Broadcaster) ToConn(conn Conn, line string) bool {
	return b.deliver(conn, line)
}

func (b *Broadcaster) deliver(conn Conn, line string) bool {
	err := conn.Send(line)
	if err == nil {
		return true
	}
	metrics.DeliveryFailures.Inc()
	if errors.Is(err, ErrConnClosed) {
		log.Debug().Str("conn", conn.ID()).Msg("skip closed connection")
		return false
	}
	log.Warn().Err(err).Str("conn", conn.ID()).Msg("delivery failed, closing connection")
	_ = conn.Close()
	return false
}
