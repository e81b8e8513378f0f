package wire

import "encoding/binary"

// reader walks a byte slice left to right, returning ok=false instead of
// panicking once it runs past the end. Every field access in this package
// goes through it so a truncated datagram always degrades to a clean
// parse error instead of an index panic.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) u32() (uint32, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

func (r *reader) byte() (byte, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, false
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

func (r *reader) rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// writer appends wire-format fields to a growing buffer.
type writer struct {
	buf []byte
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}
