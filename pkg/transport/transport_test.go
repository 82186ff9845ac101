package transport

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

// ============================================================================
// Framing
// ============================================================================

func TestPackUnpack(t *testing.T) {
	frames := [][]byte{[]byte("first"), {}, []byte("third frame")}
	payload := Pack(frames)
	assert.Len(t, payload, 3*lengthSize+5+11)

	got, err := Unpack(payload)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []byte("first"), got[0])
	assert.Empty(t, got[1])
	assert.Equal(t, []byte("third frame"), got[2])
}

func TestUnpackErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"TrailingBytes", []byte{0, 0}},
		{"ShortFrame", []byte{0, 0, 0, 9, 'a', 'b'}},
		{"ValidThenShort", append(Pack([][]byte{[]byte("ok")}), 0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpack(tt.data)
			assert.ErrorIs(t, err, ErrBadFraming)
		})
	}
}

func TestUnpackEmpty(t *testing.T) {
	frames, err := Unpack(nil)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

// ============================================================================
// Endpoints
// ============================================================================

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		want     Endpoint
		listen   string
		dial     string
		wantFail bool
	}{
		{in: "tcp://*:5670", want: Endpoint{"tcp", "*", "5670"}, listen: ":5670", dial: "ws://localhost:5670/fmq"},
		{in: "ws://127.0.0.1:*", want: Endpoint{"ws", "127.0.0.1", "*"}, listen: "127.0.0.1:0"},
		{in: "ws://[::1]:0", want: Endpoint{"ws", "::1", "0"}, listen: "[::1]:0", dial: "ws://[::1]:0/fmq"},
		{in: "tcp://example.org:80/", want: Endpoint{"tcp", "example.org", "80"}, listen: "example.org:80", dial: "ws://example.org:80/fmq"},
		{in: "udp://host:1", wantFail: true},
		{in: "host:1", wantFail: true},
		{in: "tcp://host", wantFail: true},
		{in: "tcp://host:", wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.in)
			if tt.wantFail {
				assert.ErrorIs(t, err, ErrBadEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ep)
			assert.Equal(t, tt.listen, ep.ListenAddr())
			if tt.dial != "" {
				assert.Equal(t, tt.dial, ep.DialURL("/fmq"))
			}
		})
	}
}

// ============================================================================
// Listener and Dialer
// ============================================================================

func listen(t *testing.T, opts Options) (*Listener, chan Event) {
	t.Helper()
	events := make(chan Event, 16)
	l, err := Listen("tcp://127.0.0.1:*", opts, events)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, events
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for listener event")
		return Event{}
	}
}

func nextDialEvent(t *testing.T, d *Dialer) DialEvent {
	t.Helper()
	select {
	case ev, ok := <-d.Events():
		require.True(t, ok, "dialer events closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for dialer event")
		return DialEvent{}
	}
}

func TestListenReportsEphemeralPort(t *testing.T) {
	l, _ := listen(t, Options{})
	ep, err := ParseEndpoint(l.Endpoint())
	require.NoError(t, err)
	assert.NotEqual(t, "*", ep.Port)
	assert.NotEqual(t, "0", ep.Port)
}

func TestRoundTrip(t *testing.T) {
	l, events := listen(t, Options{})

	d, err := Dial(l.Endpoint(), Options{})
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, Connected, nextDialEvent(t, d).Kind)
	require.NoError(t, d.Send([][]byte{[]byte("hello"), []byte("blob")}))

	ev := nextEvent(t, events)
	assert.Same(t, l, ev.Source)
	assert.False(t, ev.Disconnected)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("blob")}, ev.Frames)

	require.NoError(t, l.Send(ev.Peer, [][]byte{[]byte("welcome")}))
	reply := nextDialEvent(t, d)
	assert.Equal(t, Message, reply.Kind)
	assert.Equal(t, [][]byte{[]byte("welcome")}, reply.Frames)
}

func TestSendUnknownPeer(t *testing.T) {
	l, _ := listen(t, Options{})
	assert.ErrorIs(t, l.Send(ulid.Make(), [][]byte{[]byte("x")}), ErrUnknownPeer)
	assert.False(t, l.Writable(ulid.Make()))
}

func TestWritableKeepsControlReserve(t *testing.T) {
	c := &conn{send: make(chan []byte, 8), done: make(chan struct{})}
	assert.True(t, c.writable())

	for i := 0; i < 5; i++ {
		c.send <- []byte("chunk")
	}
	assert.True(t, c.writable())

	c.send <- []byte("chunk")
	assert.False(t, c.writable(), "the last quarter is reserved")

	<-c.send
	assert.True(t, c.writable())

	c.closing.Store(true)
	assert.False(t, c.writable())
}

func TestDisconnectFlushesQueuedMessages(t *testing.T) {
	l, events := listen(t, Options{})

	d, err := Dial(l.Endpoint(), Options{ReconnectMin: time.Hour, ReconnectMax: time.Hour})
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, Connected, nextDialEvent(t, d).Kind)
	require.NoError(t, d.Send([][]byte{[]byte("ping")}))
	peer := nextEvent(t, events).Peer

	require.NoError(t, l.Send(peer, [][]byte{[]byte("last words")}))
	l.Disconnect(peer)

	msg := nextDialEvent(t, d)
	assert.Equal(t, Message, msg.Kind)
	assert.Equal(t, [][]byte{[]byte("last words")}, msg.Frames)
	assert.Equal(t, Disconnected, nextDialEvent(t, d).Kind)

	ev := nextEvent(t, events)
	assert.True(t, ev.Disconnected)
	assert.Equal(t, peer, ev.Peer)
}

func TestDialerReconnects(t *testing.T) {
	l, events := listen(t, Options{})

	d, err := Dial(l.Endpoint(), Options{ReconnectMin: 10 * time.Millisecond, ReconnectMax: 50 * time.Millisecond})
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, Connected, nextDialEvent(t, d).Kind)
	require.NoError(t, d.Send([][]byte{[]byte("one")}))
	first := nextEvent(t, events).Peer

	d.Reconnect()
	assert.Equal(t, Disconnected, nextDialEvent(t, d).Kind)
	assert.Equal(t, Connected, nextDialEvent(t, d).Kind)

	ev := nextEvent(t, events)
	assert.True(t, ev.Disconnected)
	assert.Equal(t, first, ev.Peer)

	require.NoError(t, d.Send([][]byte{[]byte("two")}))
	ev = nextEvent(t, events)
	assert.NotEqual(t, first, ev.Peer, "a new websocket gets a new identity")
	assert.Equal(t, [][]byte{[]byte("two")}, ev.Frames)
}

func TestDialerSendWhileDisconnected(t *testing.T) {
	d, err := Dial("tcp://127.0.0.1:1", Options{ReconnectMin: time.Hour, ReconnectMax: time.Hour})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Send([][]byte{[]byte("x")}), ErrNotConnected)
	require.NoError(t, d.Close())

	_, open := <-d.Events()
	assert.False(t, open)
}

func TestBadFramingDropsPeer(t *testing.T) {
	l, events := listen(t, Options{})

	ep, err := ParseEndpoint(l.Endpoint())
	require.NoError(t, err)
	ws, _, err := websocket.DefaultDialer.Dial(ep.DialURL("/fmq"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 9}))
	assert.True(t, nextEvent(t, events).Disconnected)
}

func TestHandshakeRateLimit(t *testing.T) {
	l, _ := listen(t, Options{HandshakeRate: 0.001, HandshakeBurst: 1})

	ep, err := ParseEndpoint(l.Endpoint())
	require.NoError(t, err)
	url := ep.DialURL("/fmq")

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWrongPathIsNotFound(t *testing.T) {
	l, _ := listen(t, Options{Path: "/custom"})

	ep, err := ParseEndpoint(l.Endpoint())
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(ep.DialURL("/fmq"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(ep.DialURL("/custom"), nil)
	require.NoError(t, err)
	ws.Close()
}
