package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/internal/ratelimiter"
)

// ErrUnknownPeer is returned when sending to a peer that is gone.
var ErrUnknownPeer = errors.New("transport: unknown peer")

// Event is one inbound message, or a disconnect marker, from a peer.
type Event struct {
	Source       *Listener
	Peer         ulid.ULID
	Frames       [][]byte
	Disconnected bool
}

// Listener accepts websocket peers on one endpoint and forwards their
// messages to a shared event channel.
type Listener struct {
	opts     Options
	endpoint Endpoint
	listener net.Listener
	server   *http.Server
	events   chan<- Event
	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[ulid.ULID]*conn
	closed chan struct{}
	wg     sync.WaitGroup
}

// Listen binds endpoint and starts accepting peers. Events from every peer
// are delivered on events, which the caller owns and must drain.
func Listen(endpoint string, opts Options, events chan<- Event) (*Listener, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	ln, err := net.Listen("tcp", ep.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}
	ep.Port = strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	l := &Listener{
		opts:     opts,
		endpoint: ep,
		listener: ln,
		events:   events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		peers:  make(map[ulid.ULID]*conn),
		closed: make(chan struct{}),
	}

	mux := http.NewServeMux()
	limiter := ratelimiter.New(opts.HandshakeRate, opts.HandshakeBurst)
	mux.Handle(opts.Path, limiter.Middleware(http.HandlerFunc(l.handleUpgrade)))
	l.server = &http.Server{Handler: mux}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Listener on %s stopped: %v", l.endpoint, err)
		}
	}()

	logger.Info("Listening on %s (websocket path %s)", l.endpoint, opts.Path)
	return l, nil
}

// Endpoint returns the bound endpoint with the actual port.
func (l *Listener) Endpoint() string { return l.endpoint.String() }

// Addr returns the bound network address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	id := ulid.Make()
	c := newConn(ws, l.opts)

	l.mu.Lock()
	select {
	case <-l.closed:
		l.mu.Unlock()
		c.close()
		return
	default:
	}
	l.peers[id] = c
	l.wg.Add(2)
	l.mu.Unlock()

	logger.Debug("Peer %s connected from %s", id, r.RemoteAddr)

	go func() {
		defer l.wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer l.wg.Done()
		c.readLoop(func(frames [][]byte) bool {
			return l.emit(Event{Source: l, Peer: id, Frames: frames})
		})

		l.mu.Lock()
		delete(l.peers, id)
		l.mu.Unlock()
		l.emit(Event{Source: l, Peer: id, Disconnected: true})
		logger.Debug("Peer %s disconnected", id)
	}()
}

func (l *Listener) emit(ev Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-l.closed:
		return false
	}
}

func (l *Listener) peer(id ulid.ULID) *conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peers[id]
}

// Send queues one multipart message for peer without blocking.
func (l *Listener) Send(peer ulid.ULID, frames [][]byte) error {
	c := l.peer(peer)
	if c == nil {
		return ErrUnknownPeer
	}
	return c.enqueue(frames)
}

// Writable reports whether peer can take bulk traffic without filling its
// send queue. Unknown peers are never writable.
func (l *Listener) Writable(peer ulid.ULID) bool {
	c := l.peer(peer)
	return c != nil && c.writable()
}

// Disconnect closes the peer after flushing what was already sent to it.
func (l *Listener) Disconnect(peer ulid.ULID) {
	if c := l.peer(peer); c != nil {
		c.flushAndClose()
	}
}

// Close stops accepting, drops every peer and waits for all goroutines.
func (l *Listener) Close() error {
	l.mu.Lock()
	select {
	case <-l.closed:
		l.mu.Unlock()
		return nil
	default:
	}
	close(l.closed)
	peers := make([]*conn, 0, len(l.peers))
	for _, c := range l.peers {
		peers = append(peers, c)
	}
	l.mu.Unlock()

	err := l.server.Shutdown(context.Background())
	for _, c := range peers {
		c.close()
	}
	l.wg.Wait()
	return err
}
