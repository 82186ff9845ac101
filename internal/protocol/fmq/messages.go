package fmq

import (
	"fmt"
	"strconv"
)

// Message is one FILEMQ protocol message.
type Message interface {
	// ID returns the wire discriminator.
	ID() uint8

	// String returns the message kind name.
	String() string

	encode(w *writer)
	decode(r *reader) error
}

// blobCarrier is implemented by messages that travel with a second frame.
type blobCarrier interface {
	blob() []byte
	setBlob([]byte)
}

// Hello opens a session. Its fields are fixed: ProtocolName and
// ProtocolVersion.
type Hello struct{}

func (*Hello) ID() uint8      { return IDHello }
func (*Hello) String() string { return "HELLO" }

func (*Hello) encode(w *writer) {
	w.string("protocol", ProtocolName)
	w.number2(ProtocolVersion)
}

func (*Hello) decode(r *reader) error {
	protocol, err := r.string("protocol")
	if err != nil {
		return err
	}
	if protocol != ProtocolName {
		return fmt.Errorf("protocol %q: %w", protocol, ErrBadProtocol)
	}
	version, err := r.number2("version")
	if err != nil {
		return err
	}
	if version != ProtocolVersion {
		return fmt.Errorf("version %d: %w", version, ErrBadProtocol)
	}
	return nil
}

// Challenge lists the security mechanisms the server will accept.
type Challenge struct {
	Mechanisms []string
	Challenge  []byte
}

func (*Challenge) ID() uint8      { return IDChallenge }
func (*Challenge) String() string { return "CHALLENGE" }

func (m *Challenge) encode(w *writer) {
	w.strings("mechanisms", m.Mechanisms)
}

func (m *Challenge) decode(r *reader) (err error) {
	m.Mechanisms, err = r.strings("mechanisms")
	return err
}

func (m *Challenge) blob() []byte     { return m.Challenge }
func (m *Challenge) setBlob(b []byte) { m.Challenge = b }

// Response answers a Challenge with the chosen mechanism.
type Response struct {
	Mechanism string
	Response  []byte
}

func (*Response) ID() uint8      { return IDResponse }
func (*Response) String() string { return "RESPONSE" }

func (m *Response) encode(w *writer) {
	w.string("mechanism", m.Mechanism)
}

func (m *Response) decode(r *reader) (err error) {
	m.Mechanism, err = r.string("mechanism")
	return err
}

func (m *Response) blob() []byte     { return m.Response }
func (m *Response) setBlob(b []byte) { m.Response = b }

// Accepted grants access.
type Accepted struct{}

func (*Accepted) ID() uint8            { return IDAccepted }
func (*Accepted) String() string       { return "ACCEPTED" }
func (*Accepted) encode(*writer)       {}
func (*Accepted) decode(*reader) error { return nil }

// Subscribe requests every file under Path. Cache lists files the client
// already holds, keyed by name with the hex digest as value.
type Subscribe struct {
	Path    string
	Options map[string]string
	Cache   map[string]string
}

func (*Subscribe) ID() uint8      { return IDSubscribe }
func (*Subscribe) String() string { return "SUBSCRIBE" }

func (m *Subscribe) encode(w *writer) {
	w.string("path", m.Path)
	w.dict("options", m.Options)
	w.dict("cache", m.Cache)
}

func (m *Subscribe) decode(r *reader) (err error) {
	if m.Path, err = r.string("path"); err != nil {
		return err
	}
	if m.Options, err = r.dict("options"); err != nil {
		return err
	}
	m.Cache, err = r.dict("cache")
	return err
}

// OptionNumber returns a numeric option, or def when absent or not a number.
func (m *Subscribe) OptionNumber(key string, def uint64) uint64 {
	value, ok := m.Options[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// SubscribeAck confirms a Subscribe.
type SubscribeAck struct{}

func (*SubscribeAck) ID() uint8            { return IDSubscribeAck }
func (*SubscribeAck) String() string       { return "SUBSCRIBE_ACK" }
func (*SubscribeAck) encode(*writer)       {}
func (*SubscribeAck) decode(*reader) error { return nil }

// CreditGrant authorizes the server to send Credit more bytes.
type CreditGrant struct {
	Credit   uint64
	Sequence uint64
}

func (*CreditGrant) ID() uint8      { return IDCreditGrant }
func (*CreditGrant) String() string { return "CREDIT_GRANT" }

func (m *CreditGrant) encode(w *writer) {
	w.number8(m.Credit)
	w.number8(m.Sequence)
}

func (m *CreditGrant) decode(r *reader) (err error) {
	if m.Credit, err = r.number8("credit"); err != nil {
		return err
	}
	m.Sequence, err = r.number8("sequence")
	return err
}

// FileChunk carries part of a file, or a delete instruction. A create chunk
// with an empty payload marks the end of the file.
type FileChunk struct {
	Sequence  uint64
	Operation uint8
	Filename  string
	Offset    uint64
	EOF       bool
	Headers   map[string]string
	Chunk     []byte
}

func (*FileChunk) ID() uint8      { return IDFileChunk }
func (*FileChunk) String() string { return "FILE_CHUNK" }

func (m *FileChunk) encode(w *writer) {
	w.number8(m.Sequence)
	w.number1(m.Operation)
	w.string("filename", m.Filename)
	w.number8(m.Offset)
	w.bool(m.EOF)
	w.dict("headers", m.Headers)
}

func (m *FileChunk) decode(r *reader) (err error) {
	if m.Sequence, err = r.number8("sequence"); err != nil {
		return err
	}
	if m.Operation, err = r.number1("operation"); err != nil {
		return err
	}
	if m.Filename, err = r.string("filename"); err != nil {
		return err
	}
	if m.Offset, err = r.number8("offset"); err != nil {
		return err
	}
	if m.EOF, err = r.bool("eof"); err != nil {
		return err
	}
	m.Headers, err = r.dict("headers")
	return err
}

func (m *FileChunk) blob() []byte     { return m.Chunk }
func (m *FileChunk) setBlob(b []byte) { m.Chunk = b }

// Heartbeat checks that the peer is alive.
type Heartbeat struct{}

func (*Heartbeat) ID() uint8            { return IDHeartbeat }
func (*Heartbeat) String() string       { return "HEARTBEAT" }
func (*Heartbeat) encode(*writer)       {}
func (*Heartbeat) decode(*reader) error { return nil }

// HeartbeatAck answers a Heartbeat.
type HeartbeatAck struct{}

func (*HeartbeatAck) ID() uint8            { return IDHeartbeatAck }
func (*HeartbeatAck) String() string       { return "HEARTBEAT_ACK" }
func (*HeartbeatAck) encode(*writer)       {}
func (*HeartbeatAck) decode(*reader) error { return nil }

// Close ends the session.
type Close struct{}

func (*Close) ID() uint8            { return IDClose }
func (*Close) String() string       { return "CLOSE" }
func (*Close) encode(*writer)       {}
func (*Close) decode(*reader) error { return nil }

// Denied refuses access.
type Denied struct {
	Reason string
}

func (*Denied) ID() uint8      { return IDDenied }
func (*Denied) String() string { return "DENIED" }

func (m *Denied) encode(w *writer) { w.string("reason", m.Reason) }

func (m *Denied) decode(r *reader) (err error) {
	m.Reason, err = r.string("reason")
	return err
}

// ProtocolError reports an unexpected message.
type ProtocolError struct {
	Reason string
}

func (*ProtocolError) ID() uint8      { return IDProtocolError }
func (*ProtocolError) String() string { return "PROTOCOL_ERROR" }

func (m *ProtocolError) encode(w *writer) { w.string("reason", m.Reason) }

func (m *ProtocolError) decode(r *reader) (err error) {
	m.Reason, err = r.string("reason")
	return err
}
