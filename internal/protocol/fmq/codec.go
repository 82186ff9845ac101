package fmq

import (
	"encoding/binary"
	"fmt"
)

// newMessage returns an empty message for id, or nil if id is unknown.
func newMessage(id uint8) Message {
	switch id {
	case IDHello:
		return &Hello{}
	case IDChallenge:
		return &Challenge{}
	case IDResponse:
		return &Response{}
	case IDAccepted:
		return &Accepted{}
	case IDSubscribe:
		return &Subscribe{}
	case IDSubscribeAck:
		return &SubscribeAck{}
	case IDCreditGrant:
		return &CreditGrant{}
	case IDFileChunk:
		return &FileChunk{}
	case IDHeartbeat:
		return &Heartbeat{}
	case IDHeartbeatAck:
		return &HeartbeatAck{}
	case IDClose:
		return &Close{}
	case IDDenied:
		return &Denied{}
	case IDProtocolError:
		return &ProtocolError{}
	default:
		return nil
	}
}

// Encode serializes msg into its transport frames. The message is not
// modified; on error no frames are returned.
func Encode(msg Message) ([][]byte, error) {
	w := newWriter(msg.ID())
	msg.encode(w)
	if w.err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg, w.err)
	}

	frames := [][]byte{w.buf}
	if carrier, ok := msg.(blobCarrier); ok {
		frames = append(frames, carrier.blob())
	}
	return frames, nil
}

// Decode parses one message from frames. Leading frames that do not start
// with Signature are discarded.
func Decode(frames [][]byte) (Message, error) {
	for len(frames) > 0 && !hasSignature(frames[0]) {
		frames = frames[1:]
	}
	if len(frames) == 0 {
		return nil, ErrBadSignature
	}

	head := frames[0]
	id := head[2]
	msg := newMessage(id)
	if msg == nil {
		return nil, fmt.Errorf("id %d: %w", id, ErrUnknownMessage)
	}

	r := &reader{buf: head, pos: 3}
	if err := msg.decode(r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg, err)
	}

	if carrier, ok := msg.(blobCarrier); ok {
		if len(frames) < 2 {
			return nil, fmt.Errorf("decode %s: %w", msg, ErrMissingFrame)
		}
		if len(frames[1]) > 0 {
			carrier.setBlob(frames[1])
		}
	}
	return msg, nil
}

// hasSignature reports whether frame can start a message: signature plus
// room for the ID byte.
func hasSignature(frame []byte) bool {
	return len(frame) >= 3 && binary.BigEndian.Uint16(frame) == Signature
}
