// Package fmq implements the FILEMQ wire codec.
//
// Every message is carried as one or two transport frames. The first frame
// starts with a 2-byte signature and a 1-byte message ID, followed by the
// message fields in a fixed order:
//
//	[signature:2][id:1][fields...]
//
// Field encodings:
//   - numbers: 1, 2 or 8 bytes, big endian
//   - strings: [length:1][bytes], at most 255 bytes
//   - string arrays: [count:1][string]...
//   - maps: [count:1]["key=value" string]...
//
// Challenge, Response and FileChunk carry a binary blob in a second frame.
package fmq

import "errors"

// Signature precedes the message ID in every first frame. The low nibble is
// the protocol number.
const Signature uint16 = 0xAAA0 | 3

const (
	// ProtocolName is the tag sent in Hello.
	ProtocolName = "FILEMQ"

	// ProtocolVersion is the only version this codec speaks.
	ProtocolVersion uint16 = 1
)

// Message IDs.
const (
	IDHello         uint8 = 1
	IDChallenge     uint8 = 2
	IDResponse      uint8 = 3
	IDAccepted      uint8 = 4
	IDSubscribe     uint8 = 5
	IDSubscribeAck  uint8 = 6
	IDCreditGrant   uint8 = 7
	IDFileChunk     uint8 = 8
	IDHeartbeat     uint8 = 9
	IDHeartbeatAck  uint8 = 10
	IDClose         uint8 = 11
	IDDenied        uint8 = 128
	IDProtocolError uint8 = 129
)

// FileChunk operations.
const (
	FileCreate uint8 = 1
	FileDelete uint8 = 2
)

// Subscribe option keys.
const (
	OptionResync = "RESYNC"
)

// maxShort is the limit for strings, arrays and maps (1-byte length prefix).
const maxShort = 255

var (
	// ErrBadSignature is returned when no frame starts with Signature.
	ErrBadSignature = errors.New("fmq: no frame with a valid signature")

	// ErrUnknownMessage is returned for an unrecognized message ID.
	ErrUnknownMessage = errors.New("fmq: unknown message id")

	// ErrBadProtocol is returned when Hello carries the wrong tag or version.
	ErrBadProtocol = errors.New("fmq: unsupported protocol")

	// ErrMissingFrame is returned when a blob-carrying message has no
	// continuation frame.
	ErrMissingFrame = errors.New("fmq: missing continuation frame")

	// ErrMalformed is returned when a field is truncated or invalid.
	ErrMalformed = errors.New("fmq: malformed message")

	// ErrStringTooLong is returned when encoding a string over 255 bytes.
	ErrStringTooLong = errors.New("fmq: string longer than 255 bytes")

	// ErrTooManyEntries is returned when encoding an array or map with more
	// than 255 entries.
	ErrTooManyEntries = errors.New("fmq: more than 255 entries")
)
