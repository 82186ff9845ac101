package fmq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round Trip
// ============================================================================

func TestRoundTrip(t *testing.T) {
	tests := []Message{
		&Hello{},
		&Challenge{Mechanisms: []string{"ANONYMOUS", "PLAIN"}, Challenge: []byte("nonce")},
		&Challenge{},
		&Response{Mechanism: "PLAIN", Response: []byte("\x00guest\x00secret")},
		&Accepted{},
		&Subscribe{
			Path:    "/photos",
			Options: map[string]string{OptionResync: "1"},
			Cache:   map[string]string{"a.jpg": "DEADBEEF", "b/c.jpg": "CAFE"},
		},
		&Subscribe{Path: "/"},
		&SubscribeAck{},
		&CreditGrant{Credit: 4000001, Sequence: 7},
		&FileChunk{
			Sequence:  42,
			Operation: FileCreate,
			Filename:  "/photos/a.jpg",
			Offset:    1000000,
			Headers:   map[string]string{"mode": "0644"},
			Chunk:     []byte("0123456789"),
		},
		&FileChunk{Sequence: 43, Operation: FileCreate, Filename: "/photos/a.jpg", Offset: 10, EOF: true},
		&FileChunk{Sequence: 44, Operation: FileDelete, Filename: "/photos/old.jpg"},
		&Heartbeat{},
		&HeartbeatAck{},
		&Close{},
		&Denied{Reason: "no security mechanism"},
		&ProtocolError{Reason: "unexpected SUBSCRIBE"},
	}

	for _, msg := range tests {
		t.Run(msg.String(), func(t *testing.T) {
			frames, err := Encode(msg)
			require.NoError(t, err)

			decoded, err := Decode(frames)
			require.NoError(t, err)
			assert.Equal(t, msg, decoded)
			assert.Equal(t, msg.ID(), decoded.ID())
		})
	}
}

func TestEncodeFrameLayout(t *testing.T) {
	frames, err := Encode(&CreditGrant{Credit: 1, Sequence: 2})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	frame := frames[0]
	assert.Equal(t, []byte{0xAA, 0xA3, IDCreditGrant}, frame[:3])
	assert.Len(t, frame, 3+8+8)

	frames, err = Encode(&FileChunk{Operation: FileCreate, Chunk: []byte("x")})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte("x"), frames[1])
}

func TestMapEncodingIsSorted(t *testing.T) {
	a, err := Encode(&Subscribe{Path: "/", Cache: map[string]string{"b": "2", "a": "1", "c": "3"}})
	require.NoError(t, err)
	b, err := Encode(&Subscribe{Path: "/", Cache: map[string]string{"c": "3", "a": "1", "b": "2"}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// ============================================================================
// Bounds
// ============================================================================

func TestEncodeBounds(t *testing.T) {
	t.Run("StringAtLimit", func(t *testing.T) {
		msg := &Denied{Reason: strings.Repeat("x", 255)}
		frames, err := Encode(msg)
		require.NoError(t, err)
		decoded, err := Decode(frames)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("StringTooLong", func(t *testing.T) {
		msg := &Subscribe{Path: "/" + strings.Repeat("x", 255)}
		_, err := Encode(msg)
		assert.ErrorIs(t, err, ErrStringTooLong)
		assert.Len(t, msg.Path, 256, "message must not be modified")
	})

	t.Run("MapTooLarge", func(t *testing.T) {
		cache := make(map[string]string, 256)
		for i := 0; i < 256; i++ {
			cache[strings.Repeat("k", i%200+1)+string(rune('a'+i%26))+string(rune('A'+i/26))] = "v"
		}
		require.Len(t, cache, 256)
		_, err := Encode(&Subscribe{Path: "/", Cache: cache})
		assert.ErrorIs(t, err, ErrTooManyEntries)
	})
}

// ============================================================================
// Decode Failures
// ============================================================================

func TestDecodeResyncsPastGarbage(t *testing.T) {
	frames, err := Encode(&Denied{Reason: "go away"})
	require.NoError(t, err)

	garbage := [][]byte{{0x01, 0x02, 0x03}, {}, {0xAA}}
	decoded, err := Decode(append(garbage, frames...))
	require.NoError(t, err)
	assert.Equal(t, &Denied{Reason: "go away"}, decoded)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]byte
		want   error
	}{
		{"NoFrames", nil, ErrBadSignature},
		{"NoSignature", [][]byte{{0x00, 0x00, 0x01}}, ErrBadSignature},
		{"UnknownID", [][]byte{{0xAA, 0xA3, 0x63}}, ErrUnknownMessage},
		{"TruncatedNumber", [][]byte{{0xAA, 0xA3, IDCreditGrant, 0x00, 0x01}}, ErrMalformed},
		{"TruncatedString", [][]byte{{0xAA, 0xA3, IDDenied, 0x05, 'a', 'b'}}, ErrMalformed},
		{"MapEntryWithoutEquals", [][]byte{{0xAA, 0xA3, IDSubscribe, 0x01, '/', 0x01, 0x03, 'a', 'b', 'c', 0x00}}, ErrMalformed},
		{"MissingChunkFrame", [][]byte{mustEncode(t, &FileChunk{Operation: FileCreate, Filename: "/x"})[0]}, ErrMissingFrame},
		{"MissingResponseFrame", [][]byte{mustEncode(t, &Response{Mechanism: "PLAIN"})[0]}, ErrMissingFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.frames)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeHelloProtocolCheck(t *testing.T) {
	w := newWriter(IDHello)
	w.string("protocol", "ZFILE")
	w.number2(ProtocolVersion)
	_, err := Decode([][]byte{w.buf})
	assert.ErrorIs(t, err, ErrBadProtocol)

	w = newWriter(IDHello)
	w.string("protocol", ProtocolName)
	w.number2(2)
	_, err = Decode([][]byte{w.buf})
	assert.ErrorIs(t, err, ErrBadProtocol)
}

func TestSubscribeOptionNumber(t *testing.T) {
	msg := &Subscribe{Options: map[string]string{OptionResync: "1", "bad": "yes"}}
	assert.Equal(t, uint64(1), msg.OptionNumber(OptionResync, 0))
	assert.Equal(t, uint64(9), msg.OptionNumber("bad", 9))
	assert.Equal(t, uint64(0), msg.OptionNumber("missing", 0))
}

func mustEncode(t *testing.T, msg Message) [][]byte {
	t.Helper()
	frames, err := Encode(msg)
	require.NoError(t, err)
	return frames
}
