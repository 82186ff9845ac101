package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadFraming is returned for a websocket message whose frame lengths do
// not add up.
var ErrBadFraming = errors.New("transport: bad framing")

const lengthSize = 4

// Pack encodes frames into one websocket payload.
func Pack(frames [][]byte) []byte {
	size := 0
	for _, f := range frames {
		size += lengthSize + len(f)
	}
	buf := make([]byte, 0, size)
	for _, f := range frames {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f)))
		buf = append(buf, f...)
	}
	return buf
}

// Unpack splits a websocket payload into frames. Frames alias data.
func Unpack(data []byte) ([][]byte, error) {
	var frames [][]byte
	for len(data) > 0 {
		if len(data) < lengthSize {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadFraming, len(data))
		}
		n := binary.BigEndian.Uint32(data)
		data = data[lengthSize:]
		if uint64(n) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: frame of %d bytes, %d left", ErrBadFraming, n, len(data))
		}
		frames = append(frames, data[:n:n])
		data = data[n:]
	}
	return frames, nil
}
