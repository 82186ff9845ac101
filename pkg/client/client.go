// Package client implements the subscribing side of FileMQ.
//
// A Client keeps one connection to a server, replays its subscriptions on
// every (re)connect, writes received files under its inbox and reports each
// finished file on the Deliveries channel. Like the server, it runs on a
// single engine goroutine fed by control commands, transport events and a
// timer.
package client

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/marmos91/filemq/internal/credit"
	"github.com/marmos91/filemq/internal/file"
	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/internal/protocol/fmq"
	"github.com/marmos91/filemq/pkg/config/tree"
	"github.com/marmos91/filemq/pkg/metrics"
	"github.com/marmos91/filemq/pkg/store/digest"
	filestore "github.com/marmos91/filemq/pkg/store/digest/file"
	"github.com/marmos91/filemq/pkg/transport"
)

const (
	// DefaultInbox is used when client/inbox is not set.
	DefaultInbox = ".inbox"

	// DefaultHeartbeat is used when client/heartbeat is not set.
	DefaultHeartbeat = time.Second

	// DefaultLogin is sent for PLAIN when security/plain/login is not set.
	DefaultLogin = "guest"

	deliveryBuffer = 64
)

// ErrStopped is returned by control calls on a stopped client.
var ErrStopped = errors.New("client: stopped")

// Delivery reports a file that was received completely.
type Delivery struct {
	// Name is the virtual path on the server.
	Name string
	// Path is where the file was written.
	Path string
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	// Settings is the initial settings tree. Configure replaces it.
	Settings *tree.Node

	// Transport tunes the dialer.
	Transport transport.Options

	// Store persists inbox digests sent with resync subscriptions. Default
	// is a ".cache" file in each inbox directory.
	Store digest.Store

	// Metrics observes the engine. Nil disables metrics.
	Metrics metrics.ClientMetrics
}

type command struct {
	fn    func() error
	reply chan error
}

// Client is a FileMQ subscriber.
type Client struct {
	opts       Options
	metrics    metrics.ClientMetrics
	store      digest.Store
	ownsStore  bool
	commands   chan command
	deliveries chan Delivery
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc

	// Owned by the engine goroutine.
	settings *tree.Node
	endpoint string
	dialer   *transport.Dialer
	events   <-chan transport.DialEvent
	online   bool
	subs     []string
	stopping bool

	// Dialog state, reset by restart.
	state       state
	next        event
	msg         fmq.Message
	accepted    bool
	challenged  bool
	cursor      int
	window      credit.Window
	sequence    uint64
	file        *file.Record
	fileName    string
	expiresAt   time.Time
	heartbeatAt time.Time
}

// New creates a client and starts its engine goroutine. It connects once
// Connect or Configure names an endpoint.
func New(opts Options) *Client {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopClientMetrics()
	}
	settings := opts.Settings
	if settings == nil {
		settings = tree.New("root", "")
	}
	store, owns := opts.Store, false
	if store == nil {
		store, owns = filestore.NewFileDigestStore(filestore.DefaultName), true
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:       opts,
		metrics:    m,
		store:      store,
		ownsStore:  owns,
		commands:   make(chan command),
		deliveries: make(chan Delivery, deliveryBuffer),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		settings:   settings,
	}
	go c.run()
	return c
}

func (c *Client) call(fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-c.done:
		return ErrStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// Configure loads a settings file, replacing the current settings, and
// applies its sections in document order:
//
//	echo                 logged
//	subscribe/path       Subscribe
//	set_inbox/path       SetInbox
//	set_resync/enabled   SetResync
//	connect/endpoint     Connect
func (c *Client) Configure(path string) error {
	settings, err := tree.Load(path)
	if err != nil {
		return err
	}
	return c.call(func() error {
		c.settings = settings
		for _, section := range settings.Sections() {
			switch section.Name {
			case "echo":
				logger.Info("%s", section.Value)
			case "subscribe":
				c.subscribe(section.Resolve("path", "/"))
			case "set_inbox":
				c.settings.SetPath("client/inbox", section.Resolve("path", DefaultInbox))
			case "set_resync":
				c.setResync(section.ResolveBool("enabled", false))
			case "connect":
				if err := c.connect(section.Resolve("endpoint", "")); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SetOption sets one settings value, e.g. "client/heartbeat".
func (c *Client) SetOption(path, value string) error {
	return c.call(func() error {
		c.settings.SetPath(path, value)
		return nil
	})
}

// Connect dials endpoint, replacing any previous connection. The handshake
// runs, and subscriptions are replayed, every time the connection comes up.
func (c *Client) Connect(endpoint string) error {
	return c.call(func() error { return c.connect(endpoint) })
}

// Subscribe asks for every file under path. It is sent at once when the
// client is ready and replayed on every reconnect.
func (c *Client) Subscribe(path string) error {
	return c.call(func() error {
		c.subscribe(path)
		return nil
	})
}

// SetInbox sets the directory received files are written under.
func (c *Client) SetInbox(path string) error {
	return c.SetOption("client/inbox", path)
}

// SetResync makes later subscriptions ask for every file the client does
// not hold yet, instead of changes only.
func (c *Client) SetResync(enabled bool) error {
	return c.call(func() error {
		c.setResync(enabled)
		return nil
	})
}

// Deliveries reports completed files. Notifications are dropped while the
// channel is full. It is closed when the client stops.
func (c *Client) Deliveries() <-chan Delivery { return c.deliveries }

// Protocol names the engine.
func (c *Client) Protocol() string { return "client" }

// Serve blocks until ctx is cancelled or the client is stopped, stopping
// it in the first case.
func (c *Client) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		logger.Info("Client shutdown signal received: %v", ctx.Err())
		return c.Stop(context.Background())
	case <-c.done:
		return nil
	}
}

// Stop closes the connection and waits for the engine to exit.
func (c *Client) Stop(ctx context.Context) error {
	err := c.call(func() error {
		c.stopping = true
		return nil
	})
	if err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) inbox() string {
	return c.settings.Resolve("client/inbox", DefaultInbox)
}

func (c *Client) resync() bool {
	return c.settings.ResolveBool("client/resync", false)
}

func (c *Client) heartbeat() time.Duration {
	if d := c.settings.ResolveDuration("client/heartbeat", DefaultHeartbeat); d > 0 {
		return d
	}
	return DefaultHeartbeat
}

func (c *Client) setResync(enabled bool) {
	value := "0"
	if enabled {
		value = "1"
	}
	c.settings.SetPath("client/resync", value)
}

func (c *Client) subscribe(p string) {
	p = path.Join("/", p)
	for _, existing := range c.subs {
		if existing == p {
			return
		}
	}
	c.subs = append(c.subs, p)
	if c.state == stateReady && c.online {
		c.subscribeTo(p)
	}
}

func (c *Client) connect(endpoint string) error {
	c.hangUp()
	d, err := transport.Dial(endpoint, c.opts.Transport)
	if err != nil {
		return err
	}
	c.endpoint = endpoint
	c.dialer = d
	c.events = d.Events()
	c.restart()
	logger.Info("Connecting to %s", endpoint)
	return nil
}

// hangUp closes the current connection and stops redialing.
func (c *Client) hangUp() {
	if c.dialer != nil {
		_ = c.dialer.Close()
		c.dialer, c.events = nil, nil
	}
	if c.online && c.accepted {
		c.metrics.RecordDisconnected()
	}
	c.online = false
}

func (c *Client) run() {
	defer close(c.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for !c.stopping {
		select {
		case cmd := <-c.commands:
			cmd.reply <- cmd.fn()
		case ev, ok := <-c.events:
			if !ok {
				c.events = nil
				continue
			}
			c.handle(ev)
		case <-timer.C:
			c.tick(time.Now())
		}
		timer.Reset(time.Until(c.deadline()))
	}

	c.hangUp()
	c.closeFile()
	c.cancel()
	if c.ownsStore {
		_ = c.store.Close()
	}
	close(c.deliveries)
	logger.Info("Client stopped")
}

func (c *Client) deadline() time.Time {
	if !c.online || c.state == stateTerminated {
		return time.Now().Add(time.Hour)
	}
	next := c.expiresAt
	if c.state == stateReady && c.heartbeatAt.Before(next) {
		next = c.heartbeatAt
	}
	return next
}

func (c *Client) tick(now time.Time) {
	if !c.online || c.state == stateTerminated {
		return
	}
	switch {
	case !now.Before(c.expiresAt):
		logger.Warn("Server %s expired", c.endpoint)
		c.execute(eventExpired)
	case !now.Before(c.heartbeatAt):
		c.heartbeatAt = now.Add(c.heartbeat())
		c.execute(eventHeartbeat)
	}
}

// handle applies one transport event.
func (c *Client) handle(ev transport.DialEvent) {
	now := time.Now()
	switch ev.Kind {
	case transport.Connected:
		c.online = true
		if c.state == stateTerminated {
			return
		}
		c.restart()
		c.expiresAt = now.Add(2 * c.heartbeat())
		c.heartbeatAt = now.Add(c.heartbeat())
		c.execute(eventInitialize)

	case transport.Disconnected:
		if c.accepted {
			c.metrics.RecordDisconnected()
		}
		c.online = false
		if c.state != stateTerminated {
			c.restart()
		}

	case transport.Message:
		if c.state == stateTerminated {
			return
		}
		c.expiresAt = now.Add(2 * c.heartbeat())
		msg, err := fmq.Decode(ev.Frames)
		if err != nil {
			logger.Warn("Invalid message from %s: %v", c.endpoint, err)
			return
		}
		c.msg = msg
		c.execute(eventFor(msg))
		c.msg = nil
	}
}

func eventFor(msg fmq.Message) event {
	switch msg.(type) {
	case *fmq.Challenge:
		return eventChallenge
	case *fmq.Accepted:
		return eventAccepted
	case *fmq.FileChunk:
		return eventChunk
	case *fmq.Heartbeat:
		return eventHeartbeatMsg
	case *fmq.HeartbeatAck:
		return eventHeartbeatAck
	case *fmq.SubscribeAck:
		return eventSubscribeAck
	case *fmq.Denied:
		return eventDenied
	case *fmq.ProtocolError:
		return eventProtocolError
	default:
		return eventUnexpected
	}
}
