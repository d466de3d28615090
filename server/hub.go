package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// client is one websocket viewer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans messages out to every connected viewer. A viewer whose buffer is
// full is disconnected.
type hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	stop       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     logrus.FieldLogger
}

func newHub(logger logrus.FieldLogger) *hub {
	return &hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("clients", n).Debug("viewer connected")

		case c := <-h.unregister:
			h.remove(c)

		case message := <-h.broadcast:
			h.mutex.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, c)
				}
			}
			h.mutex.RUnlock()
			for _, c := range slow {
				h.logger.Warn("dropping slow viewer")
				h.remove(c)
			}

		case <-h.stop:
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return
		}
	}
}

func (h *hub) remove(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.WithField("clients", len(h.clients)).Debug("viewer disconnected")
	}
}

// Register adds a viewer. It reports false once the hub is closed.
func (h *hub) Register(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stop:
		return false
	}
}

// Unregister removes a viewer.
func (h *hub) Unregister(c *client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// Broadcast queues a message for every viewer.
func (h *hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.stop:
	}
}

// ClientCount returns the number of connected viewers.
func (h *hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// writePump sends queued messages and keepalive pings until the send
// channel is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
