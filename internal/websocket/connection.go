package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection lifecycle states.
const (
	StateConnecting   = "connecting"
	StateJoined       = "joined"
	StateDisconnected = "disconnected"
)

// Connection wraps a WebSocket peer with a single writer goroutine and a
// bounded delivery queue. Backpressure policy: when the queue is full the
// oldest pending message is dropped, so one slow observer never blocks the
// publisher or other observers. Closing discards everything still queued.
type Connection struct {
	id           string
	conn         *websocket.Conn
	sendCh       chan []byte
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	enqueueMu sync.Mutex // serializes enqueue + drop-oldest as one step

	mu        sync.RWMutex // guards state fields
	state     string
	role      string
	sessionID string
}

// NewConnection wraps an upgraded WebSocket connection and starts its writer
// goroutine. The connection begins in the Connecting state.
func NewConnection(conn *websocket.Conn, queueSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		sendCh:       make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateConnecting,
	}

	go c.writeLoop()

	return c
}

// ID returns the server-assigned connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Deliver queues a message for the peer. Thread-safe and non-blocking: a
// full queue drops the oldest pending message to make room.
func (c *Connection) Deliver(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	c.enqueueMu.Lock()
	defer c.enqueueMu.Unlock()

	select {
	case c.sendCh <- data:
		return nil
	default:
	}

	// Queue full: drop the oldest pending message, then queue this one.
	// The writer goroutine may have drained a slot in between, so both
	// selects stay non-blocking.
	select {
	case <-c.sendCh:
		log.Printf("Observer queue full, dropped oldest update: conn=%s", c.id)
	default:
	}
	select {
	case c.sendCh <- data:
	default:
	}
	return nil
}

// writeLoop is the single writer for the underlying socket. Exits on write
// failure or close; pending messages are discarded at that point.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Close terminates the connection. Outstanding deliveries are discarded
// immediately; nothing is retried after the peer is gone.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.setState(StateDisconnected)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Join transitions the connection from Connecting to Joined.
func (c *Connection) Join(role, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting {
		return ErrAlreadyJoined
	}
	c.state = StateJoined
	c.role = role
	c.sessionID = sessionID
	return nil
}

// State returns the connection's lifecycle state.
func (c *Connection) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Role returns the joined role, empty while still Connecting.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SessionID returns the joined session, empty while still Connecting.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
