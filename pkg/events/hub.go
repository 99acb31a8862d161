package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// pendingBufferSize bounds the per-connection send queue. A consumer that
// falls further behind loses its oldest frames; clients recover state with a
// REST reload, so dropping is preferable to stalling the publisher.
const pendingBufferSize = 256

// projectBufferSize bounds the per-project queue that holds events published
// while no subscriber is connected. Flushed to the next subscriber that
// joins; overflow drops the oldest frame.
const projectBufferSize = 100

// Publisher is the write-side interface the services layer uses. Implemented
// by Hub; tests substitute a recorder.
type Publisher interface {
	Publish(projectID int64, ev Event)
}

// NopPublisher discards all events. Used by processes that have no WebSocket
// clients, such as a split-deployment worker.
type NopPublisher struct{}

func (NopPublisher) Publish(int64, Event) {}

// Hub fans project events out to joined WebSocket connections. One Hub
// instance exists per API process; events are delivered only to connections
// on the same process.
type Hub struct {
	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Project subscriptions: project_id → set of connection_ids
	projects  map[int64]map[string]bool
	projectMu sync.RWMutex

	// Events published while a project had no subscriber, oldest first.
	buffered map[int64][][]byte
	bufMu    sync.Mutex

	writeTimeout time.Duration
}

// Connection is a single WebSocket client with its bounded pending queue.
//
// joined is accessed only from the read-loop goroutine that owns the
// connection, so it needs no lock. pending is drained by a dedicated writer
// goroutine so a slow socket never blocks Publish.
type Connection struct {
	ID      string
	conn    *websocket.Conn
	joined  map[int64]bool
	pending chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHub creates a Hub with the given per-frame write timeout.
func NewHub(writeTimeout time.Duration) *Hub {
	return &Hub{
		connections:  make(map[string]*Connection),
		projects:     make(map[int64]map[string]bool),
		buffered:     make(map[int64][][]byte),
		writeTimeout: writeTimeout,
	}
}

// clientFrame is what clients send: join/leave a project stream, or ping.
type clientFrame struct {
	Type      string `json:"type"`
	ProjectID int64  `json:"projectId"`
}

// HandleConnection runs the lifecycle of one accepted WebSocket connection.
// authorize decides whether the connected user may join a project stream.
// Blocks until the connection closes.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn, authorize func(projectID int64) bool) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:      uuid.New().String(),
		conn:    conn,
		joined:  make(map[int64]bool),
		pending: make(chan []byte, pendingBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.register(c)
	defer h.unregister(c)

	go h.writeLoop(c)

	c.send(Event{Type: "connected", Payload: map[string]string{"connectionId": c.ID}})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("Invalid WebSocket frame", "connection_id", c.ID, "error", err)
			continue
		}

		switch frame.Type {
		case "join":
			if frame.ProjectID == 0 {
				c.send(Event{Type: "error", Payload: "projectId is required for join"})
				continue
			}
			if !authorize(frame.ProjectID) {
				c.send(Event{Type: "error", Payload: "project not accessible"})
				continue
			}
			h.join(c, frame.ProjectID)
			c.send(Event{Type: "joined", Payload: map[string]int64{"projectId": frame.ProjectID}})
			h.flushBuffered(c, frame.ProjectID)

		case "leave":
			h.leave(c, frame.ProjectID)
			c.send(Event{Type: "left", Payload: map[string]int64{"projectId": frame.ProjectID}})

		case "ping":
			c.send(Event{Type: "pong"})
		}
	}
}

// Publish delivers ev to every connection joined to projectID. Never blocks:
// full pending queues drop their oldest frame.
func (h *Hub) Publish(projectID int64, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	h.projectMu.RLock()
	connIDs, exists := h.projects[projectID]
	if !exists || len(connIDs) == 0 {
		h.projectMu.RUnlock()
		h.bufferEvent(projectID, data)
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	h.projectMu.RUnlock()

	h.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if dropped := c.enqueue(data); dropped {
			slog.Warn("Slow WebSocket consumer, dropped oldest frame",
				"connection_id", c.ID, "project_id", projectID)
		}
	}
}

// ActiveConnections returns the count of open WebSocket connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// subscriberCount is used by tests to poll instead of sleeping.
func (h *Hub) subscriberCount(projectID int64) int {
	h.projectMu.RLock()
	defer h.projectMu.RUnlock()
	return len(h.projects[projectID])
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.ID] = c
}

func (h *Hub) unregister(c *Connection) {
	h.projectMu.Lock()
	for projectID := range c.joined {
		delete(h.projects[projectID], c.ID)
		if len(h.projects[projectID]) == 0 {
			delete(h.projects, projectID)
		}
	}
	h.projectMu.Unlock()

	h.mu.Lock()
	delete(h.connections, c.ID)
	h.mu.Unlock()

	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) join(c *Connection, projectID int64) {
	h.projectMu.Lock()
	defer h.projectMu.Unlock()
	if _, exists := h.projects[projectID]; !exists {
		h.projects[projectID] = make(map[string]bool)
	}
	h.projects[projectID][c.ID] = true
	c.joined[projectID] = true
}

func (h *Hub) leave(c *Connection, projectID int64) {
	h.projectMu.Lock()
	defer h.projectMu.Unlock()
	if conns, exists := h.projects[projectID]; exists {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.projects, projectID)
		}
	}
	delete(c.joined, projectID)
}

// bufferEvent queues an event for a project with no connected subscriber.
func (h *Hub) bufferEvent(projectID int64, data []byte) {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()
	buf := h.buffered[projectID]
	if len(buf) >= projectBufferSize {
		buf = buf[1:]
		slog.Warn("Project event buffer full, dropped oldest frame", "project_id", projectID)
	}
	h.buffered[projectID] = append(buf, data)
}

// flushBuffered delivers and clears the events queued while projectID had no
// subscriber.
func (h *Hub) flushBuffered(c *Connection, projectID int64) {
	h.bufMu.Lock()
	buf := h.buffered[projectID]
	delete(h.buffered, projectID)
	h.bufMu.Unlock()

	for _, data := range buf {
		c.enqueue(data)
	}
}

// writeLoop drains the pending queue onto the socket. A write failure or
// timeout tears the connection down.
func (h *Hub) writeLoop(c *Connection) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.pending:
			writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

// send marshals and enqueues a control frame for this connection.
func (c *Connection) send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue adds a frame to the pending queue, evicting the oldest frame when
// the queue is full. Reports whether anything was dropped.
func (c *Connection) enqueue(data []byte) bool {
	dropped := false
	for {
		select {
		case c.pending <- data:
			return dropped
		default:
		}
		select {
		case <-c.pending:
			dropped = true
		default:
		}
	}
}
