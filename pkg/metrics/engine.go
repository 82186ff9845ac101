package metrics

import "time"

// ServerMetrics observes a FileMQ server.
type ServerMetrics interface {
	// ConnectionOpened counts a new client record.
	ConnectionOpened()

	// ConnectionClosed counts a terminated client. reason is one of
	// "close", "expired", "denied", "protocol_error", "disconnect".
	ConnectionClosed(reason string)

	// RecordHandshake counts a negotiation outcome ("accept", "challenge", "deny").
	RecordHandshake(decision string)

	// RecordPatchQueued counts a patch added to a client queue.
	RecordPatchQueued(op string)

	// RecordChunkSent counts one FILE_CHUNK and its payload size.
	RecordChunkSent(op string, bytes int)

	// RecordRescan observes one mount rescan.
	RecordRescan(alias string, duration time.Duration, patches int)
}

// ClientMetrics observes a FileMQ client.
type ClientMetrics interface {
	RecordConnected()
	RecordDisconnected()
	RecordChunkReceived(op string, bytes int)
	RecordDelivery()
	RecordCreditGranted(bytes int64)
}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics { return noopServerMetrics{} }

// NewNoopClientMetrics returns a ClientMetrics that discards everything.
func NewNoopClientMetrics() ClientMetrics { return noopClientMetrics{} }

type noopServerMetrics struct{}

func (noopServerMetrics) ConnectionOpened()                       {}
func (noopServerMetrics) ConnectionClosed(string)                 {}
func (noopServerMetrics) RecordHandshake(string)                  {}
func (noopServerMetrics) RecordPatchQueued(string)                {}
func (noopServerMetrics) RecordChunkSent(string, int)             {}
func (noopServerMetrics) RecordRescan(string, time.Duration, int) {}

type noopClientMetrics struct{}

func (noopClientMetrics) RecordConnected()                {}
func (noopClientMetrics) RecordDisconnected()             {}
func (noopClientMetrics) RecordChunkReceived(string, int) {}
func (noopClientMetrics) RecordDelivery()                 {}
func (noopClientMetrics) RecordCreditGranted(int64)       {}
