package transport

import "time"

// Options tunes both listeners and dialers. Zero values select defaults.
type Options struct {
	// Path serves the websocket upgrade. Default "/fmq".
	Path string

	// WriteTimeout bounds one websocket write. Default 10s.
	WriteTimeout time.Duration

	// MaxMessageSize caps one inbound websocket message. Default 4 MiB.
	MaxMessageSize int64

	// HandshakeRate and HandshakeBurst limit websocket upgrades per second.
	// Zero rate disables the limit.
	HandshakeRate  float64
	HandshakeBurst int

	// ReconnectMin and ReconnectMax bound the dialer's backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// SendQueue is the number of outbound messages buffered per connection.
	// A connection whose queue overflows is dropped; bulk senders check
	// Listener.Writable first. Default 256.
	SendQueue int
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "/fmq"
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 4 << 20
	}
	if o.ReconnectMin == 0 {
		o.ReconnectMin = 100 * time.Millisecond
	}
	if o.ReconnectMax == 0 {
		o.ReconnectMax = 10 * time.Second
	}
	if o.SendQueue == 0 {
		o.SendQueue = 256
	}
	return o
}
