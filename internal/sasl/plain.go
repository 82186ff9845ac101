// Package sasl encodes the SASL PLAIN initial response used in the
// handshake.
package sasl

import (
	"bytes"
	"errors"
)

// Mechanism names.
const (
	Anonymous = "ANONYMOUS"
	Plain     = "PLAIN"
)

// ErrMalformed is returned for a PLAIN block that is not
// "[authzid] NUL login NUL password".
var ErrMalformed = errors.New("sasl: malformed PLAIN response")

// PlainEncode returns NUL login NUL password.
func PlainEncode(login, password string) []byte {
	buf := make([]byte, 0, len(login)+len(password)+2)
	buf = append(buf, 0)
	buf = append(buf, login...)
	buf = append(buf, 0)
	buf = append(buf, password...)
	return buf
}

// PlainDecode splits a PLAIN block. The authorization identity, if any, is
// ignored.
func PlainDecode(blob []byte) (login, password string, err error) {
	parts := bytes.Split(blob, []byte{0})
	if len(parts) != 3 || len(parts[1]) == 0 {
		return "", "", ErrMalformed
	}
	return string(parts[1]), string(parts[2]), nil
}
