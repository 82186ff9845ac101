package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBadEndpoint is returned for endpoints that are not tcp:// or ws://
// host:port pairs.
var ErrBadEndpoint = errors.New("transport: bad endpoint")

// Endpoint is a parsed tcp:// or ws:// address.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
}

// ParseEndpoint parses "tcp://host:port" or "ws://host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || (scheme != "tcp" && scheme != "ws") {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrBadEndpoint, s)
	}
	rest = strings.TrimSuffix(rest, "/")
	host, port, err := net.SplitHostPort(rest)
	if err != nil || port == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrBadEndpoint, s)
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port}, nil
}

// ListenAddr returns the address to bind.
func (e Endpoint) ListenAddr() string {
	host, port := e.Host, e.Port
	if host == "*" {
		host = ""
	}
	if port == "*" {
		port = "0"
	}
	return net.JoinHostPort(host, port)
}

// DialURL returns the websocket URL for path.
func (e Endpoint) DialURL(path string) string {
	host := e.Host
	if host == "*" || host == "" {
		host = "localhost"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, e.Port), Path: path}
	return u.String()
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, e.Port)
}
