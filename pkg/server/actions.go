package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/filemq/internal/dir"
	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/internal/protocol/fmq"
	"github.com/marmos91/filemq/internal/security"
	"github.com/marmos91/filemq/pkg/transport"
)

// handle routes one transport event to its client dialog, creating the
// client record on first contact.
func (s *Server) handle(ev transport.Event) {
	key := peerKey{listener: ev.Source, peer: ev.Peer}
	if _, gone := s.gone[key]; gone {
		if ev.Disconnected {
			delete(s.gone, key)
		}
		return
	}

	var c *client
	if h, ok := s.peers[key]; ok {
		c = s.clients.get(h)
	}

	if ev.Disconnected {
		if c != nil {
			logger.Debug("Client %s went away", c)
			s.terminate(c, "disconnect")
		}
		return
	}

	now := time.Now()
	if c == nil {
		c = &client{
			key:         key,
			state:       stateStart,
			heartbeatAt: now.Add(s.heartbeat),
		}
		s.peers[key] = s.clients.add(c)
		s.metrics.ConnectionOpened()
		logger.Debug("Client %s connected", c)
	}
	c.touch(now, s.heartbeat)

	msg, err := fmq.Decode(ev.Frames)
	if err != nil {
		s.violation(c, fmt.Sprintf("invalid message: %v", err))
		return
	}
	logger.Debug("Client %s: %s in state %s", c, msg, c.state)

	c.msg = msg
	s.execute(c, eventFor(msg))
	c.msg = nil
}

func eventFor(msg fmq.Message) event {
	switch msg.(type) {
	case *fmq.Hello:
		return eventHello
	case *fmq.Response:
		return eventResponse
	case *fmq.Subscribe:
		return eventSubscribe
	case *fmq.CreditGrant:
		return eventCredit
	case *fmq.Heartbeat:
		return eventHeartbeatMsg
	case *fmq.HeartbeatAck:
		return eventHeartbeatAck
	case *fmq.Close:
		return eventClose
	default:
		return eventUnexpected
	}
}

func (s *Server) send(c *client, msg fmq.Message) {
	frames, err := fmq.Encode(msg)
	if err != nil {
		logger.Error("Cannot encode %s for client %s: %v", msg, c, err)
		return
	}
	if err := c.key.listener.Send(c.key.peer, frames); err != nil {
		if errors.Is(err, transport.ErrQueueFull) {
			logger.Warn("Client %s dropped: %v", c, err)
			return
		}
		logger.Debug("Cannot send %s to client %s: %v", msg, c, err)
	}
}

// terminate ends the dialog: subscriptions in every mount go, the open file
// is released and the peer is disconnected once pending output is flushed.
func (s *Server) terminate(c *client, reason string) {
	if c.terminated {
		return
	}
	c.terminated = true

	for _, m := range s.mounts {
		m.purge(c.handle)
	}
	c.release()
	c.queue = nil

	delete(s.peers, c.key)
	s.clients.remove(c.handle)
	if reason != "disconnect" {
		// Drop whatever the peer still sends until its websocket closes.
		s.gone[c.key] = struct{}{}
		c.key.listener.Disconnect(c.key.peer)
	}

	s.metrics.ConnectionClosed(reason)
	logger.Debug("Client %s terminated: %s", c, reason)
}

// violation answers with PROTOCOL_ERROR and drops the client.
func (s *Server) violation(c *client, reason string) {
	logger.Warn("Protocol error from client %s: %s", c, reason)
	s.send(c, &fmq.ProtocolError{Reason: reason})
	s.terminate(c, "protocol_error")
}

// ============================================================================
// Handshake
// ============================================================================

func (s *Server) negotiator() *security.Negotiator {
	return security.NewNegotiator(s.settings)
}

func (s *Server) raise(c *client, d security.Decision) {
	s.metrics.RecordHandshake(d.String())
	switch d {
	case security.Accept:
		c.next = eventFriend
	case security.Challenge:
		c.next = eventMaybe
	default:
		c.next = eventFoe
	}
}

func (s *Server) negotiate(c *client) {
	// A new HELLO starts the session over.
	c.release()
	s.raise(c, s.negotiator().Hello())
}

func (s *Server) negotiateResponse(c *client) {
	msg := c.msg.(*fmq.Response)
	n := s.negotiator()

	d := n.Respond(msg.Mechanism, msg.Response)
	if d == security.Deny && n.PlainEnabled() {
		d = security.Challenge
	}
	s.raise(c, d)
}

func (s *Server) sendAccepted(c *client) {
	logger.Info("Client %s accepted", c)
	s.send(c, &fmq.Accepted{})
}

func (s *Server) sendChallenge(c *client) {
	s.send(c, &fmq.Challenge{Mechanisms: s.negotiator().Mechanisms()})
}

func (s *Server) sendDenied(c *client) {
	logger.Info("Client %s denied", c)
	s.send(c, &fmq.Denied{Reason: "access denied"})
}

func (s *Server) terminateDenied(c *client)  { s.terminate(c, "denied") }
func (s *Server) terminateClosed(c *client)  { s.terminate(c, "close") }
func (s *Server) terminateExpired(c *client) { s.terminate(c, "expired") }

// ============================================================================
// Subscriptions
// ============================================================================

// mountsFor returns the mount with the longest alias covering prefix or,
// when none does, every mount whose alias lies below prefix.
func (s *Server) mountsFor(prefix string) []*mount {
	var best *mount
	for _, m := range s.mounts {
		if covers(m.alias, prefix) && (best == nil || len(m.alias) > len(best.alias)) {
			best = m
		}
	}
	if best != nil {
		return []*mount{best}
	}

	var below []*mount
	for _, m := range s.mounts {
		if covers(prefix, m.alias) {
			below = append(below, m)
		}
	}
	return below
}

func (s *Server) storeSubscription(c *client) {
	msg := c.msg.(*fmq.Subscribe)
	prefix := cleanPath(msg.Path)
	resync := msg.OptionNumber(fmq.OptionResync, 0) == 1

	mounts := s.mountsFor(prefix)
	if len(mounts) == 0 {
		logger.Warn("Client %s subscribed to %s: nothing is published there", c, prefix)
		return
	}

	queued := false
	for _, m := range mounts {
		sub := m.subscribe(c.handle, prefix, msg.Cache)
		logger.Info("Client %s subscribed to %s on %s (resync=%t)", c, prefix, m.alias, resync)
		if !resync {
			continue
		}
		for _, p := range m.resync(prefix) {
			if sub.wants(p) {
				c.enqueue(p)
				s.metrics.RecordPatchQueued(p.Op().String())
				queued = true
			}
		}
	}

	// Credit left over from earlier grants is spent right away.
	if queued {
		c.next = eventDispatch
	}
}

func (s *Server) sendSubscribeAck(c *client) {
	s.send(c, &fmq.SubscribeAck{})
}

// ============================================================================
// Dispatch
// ============================================================================

func (s *Server) addCredit(c *client) {
	msg := c.msg.(*fmq.CreditGrant)
	c.ledger.Grant(msg.Credit)
}

// nextPatch stages the next FILE_CHUNK for c and raises send_chunk or
// send_delete, or no_credit or finished when nothing can go out. It raises
// busy while the peer's send queue is above its high-water mark; tick
// resumes the client once it drains.
func (s *Server) nextPatch(c *client) {
	if !c.key.listener.Writable(c.key.peer) {
		if !c.blocked {
			logger.Debug("Client %s: send queue full, pausing dispatch", c)
		}
		c.blocked = true
		c.next = eventBusy
		return
	}
	c.blocked = false

	if c.current == nil {
		p := c.pop()
		if p == nil {
			c.next = eventFinished
			return
		}
		if p.Op() == dir.Delete {
			c.chunk = &fmq.FileChunk{Operation: fmq.FileDelete, Filename: p.Virtual()}
			c.next = eventSendDelete
			return
		}

		rec := p.Record().Dup()
		if err := rec.Input(); err != nil {
			logger.Warn("Skipping %s: %v", p.Virtual(), err)
			c.next = eventNextPatch
			return
		}
		c.current, c.file, c.offset = p, rec, 0
	}

	size := int64(ChunkSize)
	if avail := c.ledger.Available(); avail < size {
		size = avail
	}
	if size <= 0 && c.offset < c.file.Size() {
		c.next = eventNoCredit
		return
	}

	data, err := c.file.Read(int(size), c.offset)
	if err != nil {
		logger.Warn("Abandoning %s at offset %d: %v", c.current.Virtual(), c.offset, err)
		c.release()
		c.next = eventNextPatch
		return
	}

	c.chunk = &fmq.FileChunk{
		Operation: fmq.FileCreate,
		Filename:  c.current.Virtual(),
		Offset:    uint64(c.offset),
		Chunk:     data,
	}
	if len(data) == 0 {
		c.chunk.EOF = true
		c.file.Close()
		c.file, c.current, c.offset = nil, nil, 0
	} else {
		if err := c.ledger.Spend(int64(len(data))); err != nil {
			logger.Error("Client %s: %v", c, err)
			c.next = eventNoCredit
			return
		}
		c.offset += int64(len(data))
	}
	c.next = eventSendChunk
}

func (s *Server) sendChunk(c *client) {
	chunk := c.chunk
	c.chunk = nil
	c.sequence++
	chunk.Sequence = c.sequence
	s.send(c, chunk)

	op := dir.Create
	if chunk.Operation == fmq.FileDelete {
		op = dir.Delete
	}
	s.metrics.RecordChunkSent(op.String(), len(chunk.Chunk))
}

// ============================================================================
// Heartbeats
// ============================================================================

func (s *Server) sendHeartbeat(c *client) {
	if c.state == stateReady {
		s.send(c, &fmq.Heartbeat{})
	}
}

func (s *Server) sendHeartbeatAck(c *client) {
	s.send(c, &fmq.HeartbeatAck{})
}
