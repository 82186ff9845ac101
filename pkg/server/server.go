// Package server implements the publishing side of FileMQ.
//
// A Server owns a set of mounts (published directories) and one dialog per
// connected client. Everything runs on a single engine goroutine: control
// calls are sent to it as commands, transport events are read from the
// listeners, and one timer drives rescans and heartbeats.
//
// Lifecycle:
//  1. New starts the engine goroutine
//  2. Configure/SetOption/Bind/Publish set it up, in any order
//  3. Serve blocks until its context is cancelled, or Stop is called
//
// Thread safety:
// All exported methods are safe for concurrent use.
package server

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/marmos91/filemq/internal/dir"
	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/pkg/config/tree"
	"github.com/marmos91/filemq/pkg/metrics"
	"github.com/marmos91/filemq/pkg/transport"
)

// ChunkSize is the largest payload of one FILE_CHUNK.
const ChunkSize = 1_000_000

// drainPoll is how often a client paused on a full send queue is checked.
const drainPoll = 10 * time.Millisecond

// DefaultInterval is used for server/monitor and server/heartbeat when the
// settings do not name one.
const DefaultInterval = time.Second

// ErrStopped is returned by control calls on a stopped server.
var ErrStopped = errors.New("server: stopped")

// Options configures a Server. Zero values select defaults.
type Options struct {
	// Settings is the initial settings tree. Configure replaces it.
	Settings *tree.Node

	// Transport tunes the websocket listeners.
	Transport transport.Options

	// Metrics observes the engine. Nil disables metrics.
	Metrics metrics.ServerMetrics
}

type command struct {
	fn    func() error
	reply chan error
}

// Server is a FileMQ publisher.
type Server struct {
	opts    Options
	metrics metrics.ServerMetrics

	commands chan command
	events   chan transport.Event
	done     chan struct{}

	// Owned by the engine goroutine.
	settings  *tree.Node
	listeners []*transport.Listener
	clients   registry
	peers     map[peerKey]handle
	gone      map[peerKey]struct{}
	mounts    []*mount
	monitor   time.Duration
	heartbeat time.Duration
	rescanAt  time.Time
	stopping  bool
}

// New creates a server and starts its engine goroutine.
func New(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}
	settings := opts.Settings
	if settings == nil {
		settings = tree.New("root", "")
	}

	s := &Server{
		opts:     opts,
		metrics:  m,
		commands: make(chan command),
		events:   make(chan transport.Event, 256),
		done:     make(chan struct{}),
		settings: settings,
		peers:    make(map[peerKey]handle),
		gone:     make(map[peerKey]struct{}),
	}
	s.applyTimings()
	s.rescanAt = time.Now().Add(s.monitor)

	go s.run()
	return s
}

// call runs fn on the engine goroutine and returns its error.
func (s *Server) call(fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrStopped
	}
}

// Configure loads a settings file, replacing the current settings, and
// applies its sections in document order:
//
//	echo                       logged
//	bind/endpoint              Bind
//	publish/location, alias    Publish
//	set_anonymous/enabled      SetAnonymous
func (s *Server) Configure(path string) error {
	settings, err := tree.Load(path)
	if err != nil {
		return err
	}
	return s.call(func() error {
		s.settings = settings
		s.applyTimings()
		return s.applySections()
	})
}

// SetOption sets one settings value, e.g. "server/heartbeat".
func (s *Server) SetOption(path, value string) error {
	return s.call(func() error {
		s.settings.SetPath(path, value)
		s.applyTimings()
		return nil
	})
}

// Bind listens on endpoint and returns the bound endpoint, with the actual
// port when an ephemeral one was requested.
func (s *Server) Bind(endpoint string) (string, error) {
	var bound string
	err := s.call(func() (err error) {
		bound, err = s.bind(endpoint)
		return err
	})
	return bound, err
}

// Publish shares the directory at location under alias.
func (s *Server) Publish(location, alias string) error {
	return s.call(func() error { return s.publish(location, alias) })
}

// SetAnonymous enables or disables anonymous access for new handshakes.
func (s *Server) SetAnonymous(enabled bool) error {
	return s.call(func() error {
		s.setAnonymous(enabled)
		return nil
	})
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	var n int
	if err := s.call(func() error { n = s.clients.len(); return nil }); err != nil {
		return 0
	}
	return n
}

// Endpoints returns the bound endpoints, in bind order.
func (s *Server) Endpoints() []string {
	var endpoints []string
	_ = s.call(func() error {
		for _, l := range s.listeners {
			endpoints = append(endpoints, l.Endpoint())
		}
		return nil
	})
	return endpoints
}

// Protocol names the engine.
func (s *Server) Protocol() string { return "server" }

// Serve blocks until ctx is cancelled or the server is stopped, stopping
// it in the first case.
func (s *Server) Serve(ctx context.Context) error {
	select {
	case <-ctx.Done():
		logger.Info("Server shutdown signal received: %v", ctx.Err())
		return s.Stop(context.Background())
	case <-s.done:
		return nil
	}
}

// Stop closes every listener and client and waits for the engine to exit.
// Stopping twice is not an error.
func (s *Server) Stop(ctx context.Context) error {
	err := s.call(func() error {
		s.stopping = true
		return nil
	})
	if err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) applyTimings() {
	s.monitor = positive(s.settings.ResolveDuration("server/monitor", DefaultInterval))
	s.heartbeat = positive(s.settings.ResolveDuration("server/heartbeat", DefaultInterval))
}

func positive(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}

func (s *Server) applySections() error {
	for _, section := range s.settings.Sections() {
		switch section.Name {
		case "echo":
			logger.Info("%s", section.Value)
		case "bind":
			if _, err := s.bind(section.Resolve("endpoint", "")); err != nil {
				return err
			}
		case "publish":
			if err := s.publish(section.Resolve("location", ""), section.Resolve("alias", "/")); err != nil {
				return err
			}
		case "set_anonymous":
			s.setAnonymous(section.ResolveBool("enabled", false))
		}
	}
	return nil
}

func (s *Server) bind(endpoint string) (string, error) {
	l, err := transport.Listen(endpoint, s.opts.Transport, s.events)
	if err != nil {
		return "", err
	}
	s.listeners = append(s.listeners, l)
	return l.Endpoint(), nil
}

// publish adds a mount. A location already published under the same alias
// is left alone, so reapplying a settings file is harmless.
func (s *Server) publish(location, alias string) error {
	if abs, err := filepath.Abs(location); err == nil {
		for _, m := range s.mounts {
			if m.location == abs && m.alias == cleanPath(alias) {
				logger.Debug("%s is already published as %s", abs, m.alias)
				return nil
			}
		}
	}

	m, err := newMount(location, alias)
	if err != nil {
		return err
	}
	s.mounts = append(s.mounts, m)
	logger.Info("Publishing %s as %s", m.location, m.alias)
	return nil
}

func (s *Server) setAnonymous(enabled bool) {
	value := "0"
	if enabled {
		value = "1"
	}
	s.settings.SetPath("security/anonymous", value)
}

func (s *Server) run() {
	defer close(s.done)

	timer := time.NewTimer(s.monitor)
	defer timer.Stop()

	for !s.stopping {
		select {
		case cmd := <-s.commands:
			cmd.reply <- cmd.fn()
		case ev := <-s.events:
			s.handle(ev)
		case <-timer.C:
			s.tick(time.Now())
		}
		timer.Reset(time.Until(s.deadline()))
	}

	s.shutdown()
}

// deadline returns the earliest rescan, heartbeat, expiry or drain check.
func (s *Server) deadline() time.Time {
	next := s.rescanAt
	drain := time.Now().Add(drainPoll)
	s.clients.each(func(c *client) {
		if c.blocked && drain.Before(next) {
			next = drain
		}
		if c.heartbeatAt.Before(next) {
			next = c.heartbeatAt
		}
		if c.expiresAt.Before(next) {
			next = c.expiresAt
		}
	})
	return next
}

func (s *Server) tick(now time.Time) {
	if !now.Before(s.rescanAt) {
		s.rescan()
		s.rescanAt = now.Add(s.monitor)
	}

	s.clients.each(func(c *client) {
		switch {
		case !now.Before(c.expiresAt):
			s.execute(c, eventExpired)
		case !now.Before(c.heartbeatAt):
			c.heartbeatAt = now.Add(s.heartbeat)
			s.execute(c, eventHeartbeat)
		}
		if c.blocked && !c.terminated && c.key.listener.Writable(c.key.peer) {
			c.blocked = false
			s.execute(c, eventDispatch)
		}
	})
}

// rescan diffs every mount and fans the patches out to the clients whose
// subscriptions cover them. Clients that got anything are dispatched.
func (s *Server) rescan() {
	activity := false
	for _, m := range s.mounts {
		start := time.Now()
		patches, err := m.rescan()
		if err != nil {
			logger.Warn("Rescan of %s failed: %v", m.location, err)
			continue
		}
		s.metrics.RecordRescan(m.alias, time.Since(start), len(patches))
		if len(patches) > 0 {
			logger.Debug("Rescan of %s found %d change(s)", m.alias, len(patches))
		}
		for _, p := range patches {
			if s.fanOut(m, p) {
				activity = true
			}
		}
	}

	if activity {
		s.clients.each(func(c *client) {
			s.execute(c, eventDispatch)
		})
	}
}

func (s *Server) fanOut(m *mount, p *dir.Patch) bool {
	queued := false
	for _, sub := range m.subs {
		c := s.clients.get(sub.client)
		if c == nil || !sub.covers(p.Virtual()) || !sub.wants(p) {
			continue
		}
		c.enqueue(p)
		s.metrics.RecordPatchQueued(p.Op().String())
		queued = true
	}
	return queued
}

func (s *Server) shutdown() {
	s.clients.each(func(c *client) {
		s.terminate(c, "shutdown")
	})
	for _, l := range s.listeners {
		if err := l.Close(); err != nil {
			logger.Debug("Error closing listener %s: %v", l.Endpoint(), err)
		}
	}
	s.listeners = nil
	logger.Info("Server stopped")
}
