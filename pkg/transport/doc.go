// Package transport carries multipart messages over websockets.
//
// One websocket binary message holds one multipart message, encoded as
// repeated [4-byte big-endian length][bytes] frames. Servers accept peers
// with a Listener; clients keep a single connection with a Dialer that
// redials with exponential backoff.
//
// Endpoints use the forms tcp://host:port and ws://host:port. A "*" host
// listens on all interfaces (and dials localhost); a "*" or "0" port picks
// an ephemeral port, reported by Listener.Endpoint.
package transport
