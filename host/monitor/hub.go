package monitor

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	log "github.com/sirupsen/logrus"
)

const (
	sendQueue  = 8
	writeWait  = time.Second
	pingPeriod = 30 * time.Second
)

// Hub fans status reports out to websocket clients. A client that cannot
// keep up is disconnected rather than slowing the others down.
type Hub struct {
	upgrader websocket.Upgrader
	clients  *xsync.Map[uint64, *client]
	nextID   atomic.Uint64
	last     atomic.Pointer[[]byte]
	log      *log.Entry
}

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates an empty hub
func NewHub(logger *log.Entry) *Hub {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: xsync.NewMap[uint64, *client](),
		log:     logger,
	}
}

// ServeHTTP upgrades the request and streams reports until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:   h.nextID.Add(1),
		conn: conn,
		send: make(chan []byte, sendQueue),
		done: make(chan struct{}),
	}
	if last := h.last.Load(); last != nil {
		c.send <- *last
	}
	h.clients.Store(c.id, c)
	h.log.WithFields(log.Fields{"client": c.id, "remote": r.RemoteAddr}).Info("websocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)

	h.clients.Delete(c.id)
	c.close()
	h.log.WithField("client", c.id).Info("websocket client left")
}

// readLoop discards client messages; it only watches for the close
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// Broadcast queues data for every client and keeps it for new ones
func (h *Hub) Broadcast(data []byte) {
	h.last.Store(&data)
	h.clients.Range(func(id uint64, c *client) bool {
		select {
		case c.send <- data:
		default:
			h.log.WithField("client", id).Warn("websocket client too slow, dropping")
			h.clients.Delete(id)
			c.close()
		}
		return true
	})
}

// Last returns the most recent report, or nil
func (h *Hub) Last() []byte {
	if last := h.last.Load(); last != nil {
		return *last
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return h.clients.Size()
}

// Close disconnects every client
func (h *Hub) Close() {
	h.clients.Range(func(id uint64, c *client) bool {
		h.clients.Delete(id)
		c.close()
		return true
	})
}
