package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"

	"github.com/marmos91/filemq/internal/logger"
)

// ErrNotConnected is returned by Dialer.Send while no websocket is up.
var ErrNotConnected = errors.New("transport: not connected")

// DialEventKind tells what a DialEvent reports.
type DialEventKind int

const (
	Connected DialEventKind = iota + 1
	Message
	Disconnected
)

func (k DialEventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Message:
		return "message"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DialEvent is a connection change or one inbound message.
type DialEvent struct {
	Kind   DialEventKind
	Frames [][]byte
}

// Dialer keeps one websocket open to an endpoint, redialing with
// exponential backoff whenever it drops.
type Dialer struct {
	opts   Options
	url    string
	events chan DialEvent

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	current *conn
}

// Dial starts connecting to endpoint in the background. The first event
// on Events is Connected once the websocket is up.
func Dial(endpoint string, opts Options) (*Dialer, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dialer{
		opts:   opts,
		url:    ep.DialURL(opts.Path),
		events: make(chan DialEvent, opts.SendQueue),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// Events delivers connection changes and inbound messages. It is closed
// after Close.
func (d *Dialer) Events() <-chan DialEvent { return d.events }

// URL returns the websocket URL being dialed.
func (d *Dialer) URL() string { return d.url }

func (d *Dialer) run() {
	defer close(d.done)
	defer close(d.events)

	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.opts.WriteTimeout,
	}

	for {
		var ws *websocket.Conn
		err := retry.Do(
			func() error {
				c, resp, err := wsDialer.DialContext(d.ctx, d.url, nil)
				if resp != nil && resp.Body != nil {
					_ = resp.Body.Close()
				}
				if err != nil {
					return err
				}
				ws = c
				return nil
			},
			retry.Context(d.ctx),
			retry.Attempts(0),
			retry.Delay(d.opts.ReconnectMin),
			retry.MaxDelay(d.opts.ReconnectMax),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				logger.Debug("Dial %s attempt %d failed: %v", d.url, n+1, err)
			}),
		)
		if err != nil {
			return
		}

		c := newConn(ws, d.opts)
		d.mu.Lock()
		d.current = c
		d.mu.Unlock()

		logger.Debug("Connected to %s", d.url)
		if !d.emit(DialEvent{Kind: Connected}) {
			c.close()
			return
		}

		go c.writeLoop()
		go func() {
			select {
			case <-d.ctx.Done():
				c.close()
			case <-c.done:
			}
		}()
		c.readLoop(func(frames [][]byte) bool {
			return d.emit(DialEvent{Kind: Message, Frames: frames})
		})

		d.mu.Lock()
		d.current = nil
		d.mu.Unlock()

		logger.Debug("Disconnected from %s", d.url)
		if !d.emit(DialEvent{Kind: Disconnected}) {
			return
		}
	}
}

func (d *Dialer) emit(ev DialEvent) bool {
	select {
	case d.events <- ev:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// Send queues one multipart message on the current websocket.
func (d *Dialer) Send(frames [][]byte) error {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	return c.enqueue(frames)
}

// Reconnect drops the current websocket; the dialer redials.
func (d *Dialer) Reconnect() {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c != nil {
		c.close()
	}
}

// Close stops redialing, closes the websocket and waits for the dialer to
// finish.
func (d *Dialer) Close() error {
	d.cancel()
	d.Reconnect()
	<-d.done
	return nil
}
