package server

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/marmos91/filemq/internal/credit"
	"github.com/marmos91/filemq/internal/dir"
	"github.com/marmos91/filemq/internal/file"
	"github.com/marmos91/filemq/internal/protocol/fmq"
	"github.com/marmos91/filemq/pkg/transport"
)

// peerKey identifies a websocket across all listeners.
type peerKey struct {
	listener *transport.Listener
	peer     ulid.ULID
}

// client is the server's record of one connected peer. It is only touched
// from the engine goroutine.
type client struct {
	handle handle
	key    peerKey

	state state
	// next is the event raised by the running action, if any.
	next event
	// msg is the inbound message being handled.
	msg fmq.Message

	heartbeatAt time.Time
	expiresAt   time.Time

	ledger credit.Ledger

	// queue holds at most one patch per virtual path, oldest first.
	queue []*dir.Patch

	// The patch being streamed and its open file.
	current *dir.Patch
	file    *file.Record
	offset  int64

	// chunk is staged by nextPatch and emitted by sendChunk.
	chunk    *fmq.FileChunk
	sequence uint64

	// blocked is set while the peer's send queue is too full for chunks.
	blocked bool

	terminated bool
}

func (c *client) String() string {
	return c.key.peer.String()
}

// touch records input from the peer.
func (c *client) touch(now time.Time, heartbeat time.Duration) {
	c.expiresAt = now.Add(3 * heartbeat)
}

// enqueue adds p, replacing any patch queued for the same virtual path.
func (c *client) enqueue(p *dir.Patch) {
	for i, queued := range c.queue {
		if queued.Virtual() == p.Virtual() {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	c.queue = append(c.queue, p)
}

func (c *client) pop() *dir.Patch {
	if len(c.queue) == 0 {
		return nil
	}
	p := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return p
}

// release closes the open file and forgets the patch being streamed.
func (c *client) release() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	c.current = nil
	c.offset = 0
	c.chunk = nil
}
