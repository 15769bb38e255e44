package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrAckTimeout reports that the peer did not acknowledge a frame
	// within the bounded wait.
	ErrAckTimeout = errors.New("acknowledgment timed out")
	// ErrClientClosed reports a write against a closed connection.
	ErrClientClosed = errors.New("client closed")
)

const sendBufferSize = 256

// Client wraps one websocket connection. Writes are serialized through
// the send channel by writePump; EmitWait correlates acknowledgment
// frames with in-flight pushes via per-frame ack ids.
type Client struct {
	userID string
	connID string
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	send chan []byte

	mu      sync.Mutex
	pending map[int64]chan json.RawMessage
	nextAck int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient builds a Client for an upgraded connection. The caller must
// start writePump via Start and drive reads via ReadLoop.
func NewClient(conn *websocket.Conn, userID, connID string, logger *zap.SugaredLogger) *Client {
	return &Client{
		userID:  userID,
		connID:  connID,
		conn:    conn,
		logger:  logger,
		send:    make(chan []byte, sendBufferSize),
		pending: make(map[int64]chan json.RawMessage),
		done:    make(chan struct{}),
	}
}

func (c *Client) UserID() string { return c.userID }
func (c *Client) ConnID() string { return c.connID }

// Start launches the write pump.
func (c *Client) Start() {
	go c.writePump()
}

// Emit sends a fire-and-forget frame.
func (c *Client) Emit(event string, data any) error {
	return c.enqueue(Frame{Event: event}, data)
}

// Ack replies to an inbound frame that requested acknowledgment.
func (c *Client) Ack(ackID int64, data any) error {
	return c.enqueue(Frame{Event: EventAck, AckID: ackID}, data)
}

// EmitWait sends a frame and blocks until the peer acknowledges it,
// the timeout elapses, the context is canceled, or the connection
// closes. The caller proceeds on both the success and timeout paths.
func (c *Client) EmitWait(ctx context.Context, event string, data any, timeout time.Duration) error {
	id := atomic.AddInt64(&c.nextAck, 1)
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(Frame{Event: event, AckID: id}, data); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

// ReadLoop blocks reading frames until the connection fails or closes.
// Acknowledgment frames are resolved internally; every other frame is
// handed to onFrame.
func (c *Client) ReadLoop(onFrame func(Frame)) error {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.logger.Warnw("dropping malformed frame", "conn_id", c.connID, "error", err)
			continue
		}

		if frame.Event == EventAck {
			c.resolveAck(frame.AckID, frame.Data)
			continue
		}
		onFrame(frame)
	}
}

// Close shuts the connection down and unblocks in-flight EmitWait calls.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) resolveAck(ackID int64, data json.RawMessage) {
	c.mu.Lock()
	ch, ok := c.pending[ackID]
	c.mu.Unlock()
	if !ok {
		// Late ack after timeout; nothing is waiting.
		return
	}
	select {
	case ch <- data:
	default:
	}
}

func (c *Client) enqueue(frame Frame, data any) error {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		frame.Data = raw
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	case c.send <- payload:
		return nil
	default:
		// A peer that stopped reading must not stall other connections.
		c.logger.Warnw("send buffer full, closing connection", "conn_id", c.connID, "user_id", c.userID)
		c.Close()
		return ErrClientClosed
	}
}

func (c *Client) writePump() {
	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warnw("websocket write error", "conn_id", c.connID, "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
