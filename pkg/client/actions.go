package client

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/marmos91/filemq/internal/dir"
	"github.com/marmos91/filemq/internal/file"
	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/internal/protocol/fmq"
	"github.com/marmos91/filemq/internal/sasl"
)

// maxCacheEntries is the most entries one SUBSCRIBE cache map can carry.
const maxCacheEntries = 255

func (c *Client) logf(format string, args ...any) {
	logger.Warn("Server %s: %s", c.endpoint, fmt.Sprintf(format, args...))
}

func (c *Client) send(msg fmq.Message) {
	if c.dialer == nil {
		return
	}
	frames, err := fmq.Encode(msg)
	if err != nil {
		logger.Error("Cannot encode %s: %v", msg, err)
		return
	}
	if err := c.dialer.Send(frames); err != nil {
		logger.Debug("Cannot send %s to %s: %v", msg, c.endpoint, err)
	}
}

// restart returns the dialog to its initial state. Subscriptions survive.
func (c *Client) restart() {
	c.state = stateStart
	c.accepted = false
	c.challenged = false
	c.cursor = 0
	c.window.Reset()
	c.closeFile()
}

func (c *Client) reconnect() {
	if c.dialer != nil {
		c.dialer.Reconnect()
	}
	c.online = false
}

func (c *Client) closeFile() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
		c.fileName = ""
	}
}

// ============================================================================
// Handshake
// ============================================================================

func (c *Client) sendHello() {
	c.send(&fmq.Hello{})
}

// sendCredentials answers a challenge. A second challenge in the same
// session means the credentials were rejected.
func (c *Client) sendCredentials() {
	if c.challenged {
		logger.Warn("Credentials rejected by %s", c.endpoint)
		c.next = eventDenied
		return
	}
	c.challenged = true

	challenge := c.msg.(*fmq.Challenge)
	switch {
	case slices.Contains(challenge.Mechanisms, sasl.Plain):
		login := c.settings.Resolve("security/plain/login", DefaultLogin)
		password := c.settings.Resolve("security/plain/password", "")
		c.send(&fmq.Response{Mechanism: sasl.Plain, Response: sasl.PlainEncode(login, password)})
	case slices.Contains(challenge.Mechanisms, sasl.Anonymous):
		c.send(&fmq.Response{Mechanism: sasl.Anonymous})
	default:
		c.logf("no supported mechanism in %v", challenge.Mechanisms)
	}
}

func (c *Client) markConnected() {
	c.accepted = true
	c.metrics.RecordConnected()
	logger.Info("Connected to %s", c.endpoint)
}

func (c *Client) logDenied() {
	logger.Warn("Access denied by %s", c.endpoint)
	c.hangUp()
}

func (c *Client) logProtocolError() {
	reason := c.msg.(*fmq.ProtocolError).Reason
	logger.Warn("Protocol error from %s: %s", c.endpoint, reason)
	c.hangUp()
}

// ============================================================================
// Subscriptions
// ============================================================================

func (c *Client) firstSubscription() {
	c.cursor = 0
	c.raiseSubscription()
}

func (c *Client) nextSubscription() {
	c.cursor++
	c.raiseSubscription()
}

func (c *Client) raiseSubscription() {
	if c.cursor < len(c.subs) {
		c.next = eventOK
	} else {
		c.next = eventFinished
	}
}

func (c *Client) sendSubscribe() {
	c.subscribeTo(c.subs[c.cursor])
}

func (c *Client) subscribeTo(p string) {
	msg := &fmq.Subscribe{Path: p}
	if c.resync() {
		msg.Options = map[string]string{fmq.OptionResync: "1"}
		msg.Cache = c.inboxCache(p)
	}
	logger.Debug("Subscribing to %s on %s (resync=%t)", p, c.endpoint, c.resync())
	c.send(msg)
}

// inboxCache returns the digests of files already in the inbox under p,
// keyed relative to p. A missing directory has no cache.
func (c *Client) inboxCache(p string) map[string]string {
	location := filepath.Join(c.inbox(), filepath.FromSlash(strings.TrimPrefix(p, "/")))
	snap, err := dir.Load(location)
	if err != nil {
		return nil
	}
	cache, err := snap.Cache(c.ctx, c.store)
	if err != nil {
		logger.Warn("Digest cache for %s: %v", location, err)
	}
	if len(cache) <= maxCacheEntries {
		return cache
	}

	names := make([]string, 0, len(cache))
	for name := range cache {
		names = append(names, name)
	}
	slices.Sort(names)
	logger.Warn("Digest cache for %s has %d entries, sending the first %d", location, len(names), maxCacheEntries)
	trimmed := make(map[string]string, maxCacheEntries)
	for _, name := range names[:maxCacheEntries] {
		trimmed[name] = cache[name]
	}
	return trimmed
}

// ============================================================================
// Transfer
// ============================================================================

func (c *Client) refillCredit() {
	grant := c.window.Refill()
	if grant <= 0 {
		return
	}
	c.sequence++
	c.send(&fmq.CreditGrant{Credit: uint64(grant), Sequence: c.sequence})
	c.metrics.RecordCreditGranted(grant)
}

// applyChunk writes or deletes one file in the inbox. Credit is consumed
// for every payload byte, written or not, since the server has spent it.
func (c *Client) applyChunk() {
	chunk := c.msg.(*fmq.FileChunk)
	name := path.Clean("/" + chunk.Filename)
	c.window.Consume(len(chunk.Chunk))

	switch chunk.Operation {
	case fmq.FileDelete:
		c.metrics.RecordChunkReceived("delete", 0)
		if c.fileName == name {
			c.closeFile()
		}
		if err := file.Join(c.inbox(), name).Remove(); err != nil {
			logger.Warn("Cannot delete %s: %v", name, err)
			return
		}
		logger.Debug("Deleted %s", name)

	case fmq.FileCreate:
		c.metrics.RecordChunkReceived("create", len(chunk.Chunk))
		if c.file == nil || c.fileName != name {
			c.closeFile()
			rec := file.Join(c.inbox(), name)
			if err := rec.Output(); err != nil {
				logger.Warn("Cannot write %s: %v", name, err)
				return
			}
			c.file, c.fileName = rec, name
		}

		if len(chunk.Chunk) == 0 {
			c.finishFile(int64(chunk.Offset))
			return
		}
		if err := c.file.Write(chunk.Chunk, int64(chunk.Offset)); err != nil {
			logger.Warn("Cannot write %s: %v", name, err)
			c.closeFile()
		}

	default:
		c.logf("unknown file operation %d for %s", chunk.Operation, name)
	}
}

// finishFile trims the file to its final size, closes it and reports it.
func (c *Client) finishFile(size int64) {
	if err := c.file.Truncate(size); err != nil {
		logger.Warn("Cannot finish %s: %v", c.fileName, err)
	}
	d := Delivery{Name: c.fileName, Path: c.file.Path()}
	c.closeFile()

	c.metrics.RecordDelivery()
	logger.Debug("Received %s", d.Name)
	select {
	case c.deliveries <- d:
	default:
		logger.Warn("Delivery queue full, dropping notification for %s", d.Name)
	}
}

// ============================================================================
// Heartbeats
// ============================================================================

func (c *Client) sendHeartbeat() {
	c.send(&fmq.Heartbeat{})
}

func (c *Client) sendHeartbeatAck() {
	c.send(&fmq.HeartbeatAck{})
}
