package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marmos91/filemq/internal/logger"
)

var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrQueueFull is returned when a peer does not drain its send queue;
	// the connection is dropped.
	ErrQueueFull = errors.New("transport: send queue full")
)

// conn pumps one websocket. Writes happen on writeLoop only; reads on the
// goroutine running readLoop.
type conn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closing      atomic.Bool
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newConn(ws *websocket.Conn, opts Options) *conn {
	ws.SetReadLimit(opts.MaxMessageSize)
	return &conn{
		ws:           ws,
		send:         make(chan []byte, opts.SendQueue),
		done:         make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
	}
}

// enqueue schedules one multipart message without blocking.
func (c *conn) enqueue(frames [][]byte) error {
	if c.closing.Load() {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- Pack(frames):
		return nil
	default:
		c.close()
		return ErrQueueFull
	}
}

// writable reports whether the queue is below its high-water mark. The
// top quarter is left for control messages.
func (c *conn) writable() bool {
	if c.closing.Load() {
		return false
	}
	return len(c.send) < cap(c.send)-cap(c.send)/4
}

// flushAndClose closes the connection once everything queued so far is
// written.
func (c *conn) flushAndClose() {
	if c.closing.Swap(true) {
		return
	}
	select {
	case c.send <- nil:
	default:
		c.close()
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) writeLoop() {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if payload == nil {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				logger.Debug("Websocket write failed: %v", err)
				return
			}
		}
	}
}

// readLoop hands every inbound message to deliver until the connection
// fails or deliver returns false.
func (c *conn) readLoop(deliver func([][]byte) bool) {
	defer c.close()
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					logger.Debug("Websocket read failed: %v", err)
				}
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		frames, err := Unpack(data)
		if err != nil {
			logger.Warn("Dropping connection: %v", err)
			return
		}
		if !deliver(frames) {
			return
		}
	}
}
