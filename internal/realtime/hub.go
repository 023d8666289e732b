// Package realtime delivers chat events to connected clients over
// websockets. Each user id is a room; a connection receives pushes for the
// room it joined.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/metrics"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// ErrConnectionClosed is returned when writing to an unregistered connection.
var ErrConnectionClosed = errors.New("connection closed")

const sendBufferSize = 256

// Connection is a single authenticated websocket connection.
type Connection struct {
	ID     string
	UserID string // authenticated user
	Conn   *websocket.Conn

	room   string // joined room, guarded by hub.mu
	send   chan []byte
	sendMu sync.Mutex
	closed bool
	wmu    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	limiter *rate.Limiter // nil when sends are not throttled
}

// Hub tracks connections and the rooms they joined.
type Hub struct {
	connections map[string]*Connection
	rooms       map[string]map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *roomMessage
	done       chan struct{}

	mu     sync.RWMutex
	logger zerolog.Logger
}

type roomMessage struct {
	room string
	data []byte
}

// NewHub creates a new Hub. Call Run before registering connections.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *roomMessage, sendBufferSize),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Run processes registrations and room pushes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conn := range h.connections {
				conn.closeSend()
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			h.logger.Debug().Str("conn", conn.ID).Str("user", conn.UserID).Msg("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.leaveLocked(conn)
				conn.closeSend()
				metrics.WebSocketConnections.Dec()
			}
			h.mu.Unlock()
			h.logger.Debug().Str("conn", conn.ID).Msg("connection unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, conn := range h.rooms[msg.room] {
				if err := conn.enqueue(msg.data); errors.Is(err, ErrBufferFull) {
					h.logger.Warn().Str("conn", conn.ID).Msg("send buffer full, dropping connection")
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection wraps an upgraded websocket for userID.
func (h *Hub) NewConnection(ws *websocket.Conn, userID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:     crypto.NewUUIDv7().String(),
		UserID: userID,
		Conn:   ws,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.closeSend()
	}
}

// Unregister removes a connection and closes its send buffer.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Join moves conn into room, leaving any room it joined before.
func (h *Hub) Join(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(conn)
	conn.room = room
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][conn.ID] = conn
}

func (h *Hub) leaveLocked(conn *Connection) {
	if conn.room == "" {
		return
	}
	if members := h.rooms[conn.room]; members != nil {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(h.rooms, conn.room)
		}
	}
	conn.room = ""
}

// Push queues raw data for every connection in room. Rooms without
// connections drop the data.
func (h *Hub) Push(room string, data []byte) {
	select {
	case h.broadcast <- &roomMessage{room: room, data: data}:
	case <-h.done:
	}
}

// PushEvent encodes an event and pushes it to room.
func (h *Hub) PushEvent(room, event string, v interface{}) error {
	data, err := Encode(event, v)
	if err != nil {
		return err
	}
	h.Push(room, data)
	return nil
}

// SendEvent encodes an event and queues it for a single connection.
func (h *Hub) SendEvent(conn *Connection, event string, v interface{}) error {
	data, err := Encode(event, v)
	if err != nil {
		return err
	}
	return conn.enqueue(data)
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Online reports whether any connection has joined the user's room.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID]) > 0
}

func (c *Connection) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// scheduleReply runs fn once d has elapsed unless the connection closes first.
func (c *Connection) scheduleReply(d time.Duration, fn func(ctx context.Context)) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-c.ctx.Done():
			metrics.AutoReplies.WithLabelValues("cancelled").Inc()
		case <-timer.C:
			fn(c.ctx)
		}
	}()
}

// writeMessage writes to the socket with proper locking.
func (c *Connection) writeMessage(messageType int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// shutdown cancels pending tasks and waits for them to finish.
func (c *Connection) shutdown() {
	c.cancel()
	c.tasks.Wait()
}
