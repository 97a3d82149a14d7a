package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/min9-wan9/Chat/internal/chat"
	"github.com/min9-wan9/Chat/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Options tune every connection accepted by Serve.
type Options struct {
	MaxFrameBytes int64
	FrameRate     float64
	FrameBurst    int
	SendBuffer    int
	CheckOrigin   func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
	if o.FrameRate <= 0 {
		o.FrameRate = 20
	}
	if o.FrameBurst <= 0 {
		o.FrameBurst = 40
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Client 是一个 WebSocket 连接，实现 chat.Conn。
// 出站消息先进入有界队列，由 writePump 单独写入套接字。
type Client struct {
	id   string
	addr string
	conn *websocket.Conn
	send chan string
	done chan struct{}
	once sync.Once
	lim  *rate.Limiter
}

func newClient(conn *websocket.Conn, addr string, opts Options) *Client {
	return &Client{
		id:   uuid.NewString(),
		addr: addr,
		conn: conn,
		send: make(chan string, opts.SendBuffer),
		done: make(chan struct{}),
		lim:  rate.NewLimiter(rate.Limit(opts.FrameRate), opts.FrameBurst),
	}
}

func (c *Client) ID() string         { return c.id }
func (c *Client) RemoteAddr() string { return c.addr }

// Send queues line without blocking.
func (c *Client) Send(line string) error {
	select {
	case <-c.done:
		return chat.ErrConnClosed
	default:
	}
	select {
	case c.send <- line:
		return nil
	default:
		return chat.ErrSlowConsumer
	}
}

// Close asks the writer to flush what is queued and close the socket.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Serve 返回 /ws 的处理函数：升级连接、注册到 router 并启动读写泵。
func Serve(router *chat.Router, opts Options) gin.HandlerFunc {
	opts = opts.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     opts.CheckOrigin,
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Str("addr", c.Request.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		client := newClient(conn, c.Request.RemoteAddr, opts)
		if err := router.Connect(client); err != nil {
			log.Error().Err(err).Msg("register connection")
			_ = conn.Close()
			return
		}
		conn.SetReadLimit(opts.MaxFrameBytes)

		go client.writePump()
		client.readPump(router)
	}
}

func (c *Client) readPump(router *chat.Router) {
	defer func() {
		router.Disconnect(c.id)
		_ = c.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("conn", c.id).Msg("read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if !c.lim.Allow() {
			log.Debug().Str("conn", c.id).Msg("frame rate exceeded")
			_ = c.Send(protocol.Error("rate limit exceeded"))
			continue
		}
		router.Handle(c, string(data))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case line := <-c.send:
			if !c.write(line) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued.
func (c *Client) flush() {
	for {
		select {
		case line := <-c.send:
			if !c.write(line) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(line string) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		log.Debug().Err(err).Str("conn", c.id).Msg("write failed")
		return false
	}
	return true
}
