package fmq

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// Field Writer
// ============================================================================

// writer appends fields to a growing frame. The first error sticks; later
// puts are no-ops so callers can check once at the end.
type writer struct {
	buf []byte
	err error
}

func newWriter(id uint8) *writer {
	w := &writer{buf: make([]byte, 0, 64)}
	w.buf = binary.BigEndian.AppendUint16(w.buf, Signature)
	w.buf = append(w.buf, id)
	return w
}

func (w *writer) number1(v uint8) {
	if w.err == nil {
		w.buf = append(w.buf, v)
	}
}

func (w *writer) number2(v uint16) {
	if w.err == nil {
		w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	}
}

func (w *writer) number8(v uint64) {
	if w.err == nil {
		w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	}
}

func (w *writer) bool(v bool) {
	if v {
		w.number1(1)
	} else {
		w.number1(0)
	}
}

func (w *writer) string(field, s string) {
	if w.err != nil {
		return
	}
	if len(s) > maxShort {
		w.err = fmt.Errorf("%s: %w", field, ErrStringTooLong)
		return
	}
	w.buf = append(w.buf, byte(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) strings(field string, list []string) {
	if w.err != nil {
		return
	}
	if len(list) > maxShort {
		w.err = fmt.Errorf("%s: %w", field, ErrTooManyEntries)
		return
	}
	w.number1(uint8(len(list)))
	for _, s := range list {
		w.string(field, s)
	}
}

// dict writes a map as "key=value" strings in key order.
func (w *writer) dict(field string, m map[string]string) {
	if w.err != nil {
		return
	}
	if len(m) > maxShort {
		w.err = fmt.Errorf("%s: %w", field, ErrTooManyEntries)
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.number1(uint8(len(keys)))
	for _, k := range keys {
		w.string(field, k+"="+m[k])
	}
}

// ============================================================================
// Field Reader
// ============================================================================

// reader consumes fields from a frame positioned after the message ID.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(field string, n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("read %s: need %d bytes, have %d: %w", field, n, len(r.buf)-r.pos, ErrMalformed)
	}
	return nil
}

func (r *reader) number1(field string) (uint8, error) {
	if err := r.need(field, 1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) number2(field string) (uint16, error) {
	if err := r.need(field, 2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) number8(field string) (uint64, error) {
	if err := r.need(field, 8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bool(field string) (bool, error) {
	v, err := r.number1(field)
	return v != 0, err
}

func (r *reader) string(field string) (string, error) {
	size, err := r.number1(field)
	if err != nil {
		return "", err
	}
	if err := r.need(field, int(size)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(size)])
	r.pos += int(size)
	return s, nil
}

func (r *reader) strings(field string) ([]string, error) {
	count, err := r.number1(field)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	list := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		s, err := r.string(field)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

func (r *reader) dict(field string) (map[string]string, error) {
	count, err := r.number1(field)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	m := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		entry, err := r.string(field)
		if err != nil {
			return nil, err
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("read %s: entry %q has no '=': %w", field, entry, ErrMalformed)
		}
		m[key] = value
	}
	return m, nil
}
